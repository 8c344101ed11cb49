package enunciator

import (
	"context"
	"sync"
	"time"

	"enroute/internal/logging"
)

type State int

const (
	Idle State = iota
	Pending
	Playing
	Captioning
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Playing:
		return "playing"
	case Captioning:
		return "captioning"
	}
	return "idle"
}

// CaptionPlaceholder is shown while an announcement's text is about to start.
const CaptionPlaceholder = "[MSG]"

// Announcement outcomes reported to Metrics.
const (
	OutcomePlayed  = "played"
	OutcomeQueued  = "queued"
	OutcomeDeduped = "deduped"
	OutcomeEmpty   = "empty"
	OutcomeFailed  = "failed"
)

type Timings struct {
	Retry   time.Duration
	PreRoll time.Duration
	Chunk   time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		Retry:   2 * time.Second,
		PreRoll: 1600 * time.Millisecond,
		Chunk:   3500 * time.Millisecond,
	}
}

type Metrics interface {
	AnnouncementInc(outcome string)
}

// MessageSource builds the message for a request; *Builder is one.
type MessageSource interface {
	Build(ctx context.Context, req Request) (*Message, error)
}

// MaxPending is how many requests may wait for playback to end. When the
// queue is full the oldest waiting request is dropped and its key forgotten,
// so a later trigger can announce it again.
const MaxPending = 4

// Sequencer plays one announcement at a time. A request that finds audio
// already playing joins a FIFO queue and is replayed, in order, once playback
// ends. Captions run on their own timers and may outlive the audio they
// belong to.
type Sequencer struct {
	source  MessageSource
	player  Player
	caption func(string)
	timings Timings
	metrics Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	closed     bool
	enunciated map[string]bool
	playing    bool
	building   int
	captions   int
	pending    []Request
	retrying   bool
}

// NewSequencer creates a sequencer. caption receives every caption change,
// "" meaning cleared; it is called from the sequencer's goroutines.
func NewSequencer(src MessageSource, player Player, caption func(string), t Timings, m Metrics) *Sequencer {
	if player == nil {
		player = NopPlayer{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sequencer{
		source:     src,
		player:     player,
		caption:    caption,
		timings:    t,
		metrics:    m,
		ctx:        ctx,
		cancel:     cancel,
		enunciated: make(map[string]bool),
	}
}

func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.playing:
		return Playing
	case s.captions > 0:
		return Captioning
	case s.building > 0 || len(s.pending) > 0:
		return Pending
	}
	return Idle
}

// Trigger requests an announcement without blocking. Keyed requests already
// seen by this sequencer are dropped.
func (s *Sequencer) Trigger(req Request) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if key := req.Key(); key != "" {
		if s.enunciated[key] {
			s.mu.Unlock()
			s.count(OutcomeDeduped)
			return
		}
		s.enunciated[key] = true
	}
	s.building++
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.announce(req)
	}()
}

// announce expects s.building to have been incremented for it.
func (s *Sequencer) announce(req Request) {
	msg, err := s.source.Build(s.ctx, req)

	s.mu.Lock()
	s.building--
	switch {
	case s.closed:
		s.mu.Unlock()
		return
	case err != nil:
		s.mu.Unlock()
		logging.Warn("announcement build failed", "chateau", req.Chateau, "phase", req.Phase, "error", err)
		s.count(OutcomeFailed)
		return
	case msg == nil:
		s.mu.Unlock()
		s.count(OutcomeEmpty)
		return
	case s.playing:
		if len(s.pending) == MaxPending {
			dropped := s.pending[0]
			s.pending = s.pending[1:]
			delete(s.enunciated, dropped.Key())
			logging.Debug("announcement queue full", "dropped", dropped.Phase, "key", dropped.Key())
		}
		s.pending = append(s.pending, req)
		start := !s.retrying
		if start {
			s.retrying = true
			s.wg.Add(1)
		}
		s.mu.Unlock()
		s.count(OutcomeQueued)
		if start {
			go s.retry()
		}
		return
	}
	s.playing = true
	s.captions++
	s.wg.Add(1)
	s.mu.Unlock()

	go s.stream(msg.Text)
	logging.Debug("announcing", "phase", msg.Phase, "text", msg.Text)
	err = s.player.Play(s.ctx, *msg)

	s.mu.Lock()
	s.playing = false
	s.mu.Unlock()

	switch {
	case s.ctx.Err() != nil:
	case err != nil:
		logging.Warn("announcement playback failed", "phase", msg.Phase, "error", err)
		s.count(OutcomeFailed)
	default:
		s.count(OutcomePlayed)
	}
}

// retry polls until playback ends, then replays the queued requests one at
// a time.
func (s *Sequencer) retry() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.timings.Retry)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			s.mu.Lock()
			s.retrying = false
			s.pending = nil
			s.mu.Unlock()
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		if s.playing {
			s.mu.Unlock()
			continue
		}
		if len(s.pending) == 0 {
			s.retrying = false
			s.mu.Unlock()
			return
		}
		req := s.pending[0]
		s.pending = s.pending[1:]
		s.building++
		s.mu.Unlock()

		s.announce(req)
	}
}

// stream shows the placeholder, then after the pre-roll one chunk per tick,
// then clears the caption.
func (s *Sequencer) stream(text string) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.captions--
		s.mu.Unlock()
	}()

	s.emit(CaptionPlaceholder)
	chunks := Chunk(text, ChunkSize)

	timer := time.NewTimer(s.timings.PreRoll)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		return
	case <-timer.C:
	}
	if len(chunks) == 0 {
		s.emit("")
		return
	}
	s.emit(chunks[0])
	chunks = chunks[1:]

	ticker := time.NewTicker(s.timings.Chunk)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
		if len(chunks) == 0 {
			s.emit("")
			return
		}
		s.emit(chunks[0])
		chunks = chunks[1:]
	}
}

func (s *Sequencer) emit(text string) {
	if s.caption != nil {
		s.caption(text)
	}
}

func (s *Sequencer) count(outcome string) {
	if s.metrics != nil {
		s.metrics.AnnouncementInc(outcome)
	}
}

// Close stops every timer and waits for in-flight playback to return.
func (s *Sequencer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}
