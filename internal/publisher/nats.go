package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"enroute/internal/enunciator"
	"enroute/internal/logging"
)

type NATSPublisher struct {
	nc          *nats.Conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("enroute"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logging.Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logging.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logging.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logSubjects: logSubjects, metrics: m}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

// BoardSubject is where snapshots of one view session are published.
func BoardSubject(prefix, view, session string) string {
	return Subject(prefix, "board", view, session)
}

// CaptionSubject carries announcement caption changes for a session.
func CaptionSubject(prefix, session string) string {
	return Subject(prefix, "caption", session)
}

// AudioSubject is the request subject remote speakers answer.
func AudioSubject(prefix string) string {
	return Subject(prefix, "audio", "play")
}

// Subject joins sanitized tokens with dots.
func Subject(tokens ...string) string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = subjectToken(t)
	}
	return strings.Join(out, ".")
}

// PublishSnapshot publishes any JSON-encodable board snapshot.
func (p *NATSPublisher) PublishSnapshot(view, session string, snap any) error {
	return p.publish(BoardSubject(p.prefix, view, session), snap)
}

type CaptionMessage struct {
	Session   string    `json:"session"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func (p *NATSPublisher) PublishCaption(session, text string) error {
	return p.publish(CaptionSubject(p.prefix, session), CaptionMessage{Session: session, Text: text, Timestamp: time.Now()})
}

func (p *NATSPublisher) publish(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if p.logSubjects {
		logging.Debug("nats publish", "subject", subject)
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

// AudioReply is what a remote speaker answers once playback has finished.
type AudioReply struct {
	Error string `json:"error,omitempty"`
}

// AudioPlayer hands messages to a remote speaker over NATS request/reply and
// blocks until it replies.
type AudioPlayer struct {
	pub     *NATSPublisher
	subject string
	// Timeout bounds one playback when ctx has no deadline.
	Timeout time.Duration
}

func (p *NATSPublisher) AudioPlayer() *AudioPlayer {
	return &AudioPlayer{pub: p, subject: AudioSubject(p.prefix), Timeout: 2 * time.Minute}
}

func (a *AudioPlayer) Play(ctx context.Context, msg enunciator.Message) error {
	b, err := json.Marshal(audioRequest(msg))
	if err != nil {
		return err
	}
	if _, ok := ctx.Deadline(); !ok && a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}
	resp, err := a.pub.nc.RequestWithContext(ctx, a.subject, b)
	if err != nil {
		return fmt.Errorf("audio request: %w", err)
	}
	return decodeReply(resp.Data)
}

// AudioRequest is the payload sent to remote speakers. Speech is the text
// with abbreviations spelled out, for speakers that synthesize it.
type AudioRequest struct {
	enunciator.Message
	Chime  string `json:"chime"`
	Speech string `json:"speech"`
}

func audioRequest(msg enunciator.Message) AudioRequest {
	return AudioRequest{Message: msg, Chime: msg.Chime(), Speech: enunciator.Expand(msg.Text)}
}

func decodeReply(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var r AudioReply
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("audio reply: %w", err)
	}
	if r.Error != "" {
		return errors.New(r.Error)
	}
	return nil
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
