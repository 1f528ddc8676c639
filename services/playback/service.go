package playback

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"couchplay/models"
	"couchplay/services/episodes"
	"couchplay/services/osd"
	"couchplay/services/progress"
	"couchplay/services/server"
	"couchplay/services/stream"
	"couchplay/services/subtitles"
)

// ErrSeekTimeout means the engine did not acknowledge a seek in time. The
// session keeps running; only the pending seek is abandoned.
var ErrSeekTimeout = errors.New("seek commit timed out")

type planBuilder interface {
	Build(ctx context.Context, item models.MediaItem, opts stream.Options) (*models.StreamPlan, error)
}

type episodeResolver interface {
	Resolve(ctx context.Context, current models.MediaItem, dir episodes.Direction, elapsedMs int64) (models.MediaItem, bool, error)
}

type cueLoader interface {
	Load(ctx context.Context, itemID, sourceID string, index int) ([]models.SubtitleCue, error)
}

type reportClient interface {
	ReportPlaying(ctx context.Context, r server.PlaybackReport) error
	ReportProgress(ctx context.Context, r server.PlaybackReport) error
	ReportStopped(ctx context.Context, r server.PlaybackReport) error
	MarkPlayed(ctx context.Context, itemID string) error
}

// Config tunes session timing and track switching.
type Config struct {
	NativeAudioCodecs []string // switchable in-container without a restart
	SeekStepMs        int64
	SeekCommitTimeout time.Duration
	ProgressInterval  time.Duration
	CueTick           time.Duration
	OSDHideDelay      time.Duration
	BurnInSubtitles   bool
}

func (c Config) withDefaults() Config {
	if len(c.NativeAudioCodecs) == 0 {
		c.NativeAudioCodecs = []string{"aac", "mp3"}
	}
	if c.SeekStepMs == 0 {
		c.SeekStepMs = 10_000
	}
	if c.SeekCommitTimeout == 0 {
		c.SeekCommitTimeout = 5 * time.Second
	}
	if c.ProgressInterval == 0 {
		c.ProgressInterval = 5 * time.Second
	}
	if c.CueTick == 0 {
		c.CueTick = 80 * time.Millisecond
	}
	if c.OSDHideDelay == 0 {
		c.OSDHideDelay = 5 * time.Second
	}
	return c
}

// Service owns the single live playback session. All state is serialized
// behind one mutex; timers and async completions re-enter through it and a
// generation counter discards work that outlives its session.
type Service struct {
	cfg       Config
	planner   planBuilder
	navigator episodeResolver
	loader    cueLoader
	reports   reportClient
	engine    Engine

	mu           sync.Mutex
	generation   uint64
	session      *models.PlaybackSession
	reporter     *progress.Reporter
	cues         *subtitles.Engine
	nativeSubs   bool
	osdState     osd.State
	lastInput    time.Time
	seeking      bool
	cancelTimers context.CancelFunc
	nextItem     *models.MediaItem
	activeCue    string
}

func NewService(cfg Config, planner planBuilder, navigator episodeResolver, loader cueLoader, reports reportClient, engine Engine) *Service {
	return &Service{
		cfg:       cfg.withDefaults(),
		planner:   planner,
		navigator: navigator,
		loader:    loader,
		reports:   reports,
		engine:    engine,
		osdState:  osd.Hidden(),
	}
}

// Start begins playback of item, replacing any running session. A plan or
// load failure leaves no partial session behind.
func (s *Service) Start(ctx context.Context, item models.MediaItem, opts stream.Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx, item, opts)
}

func (s *Service) startLocked(ctx context.Context, item models.MediaItem, opts stream.Options) error {
	if s.session != nil {
		s.stopLocked()
	}

	if !opts.BurnInSubtitle && s.cfg.BurnInSubtitles {
		opts.BurnInSubtitle = true
	}
	if opts.StartPositionMs == 0 {
		opts.StartPositionMs = item.ResumeMs()
	}

	plan, err := s.planner.Build(ctx, item, opts)
	if err != nil {
		return err
	}
	if err := s.engine.Load(ctx, plan.URL, opts.StartPositionMs); err != nil {
		return fmt.Errorf("%w: load: %v", ErrEngineFailure, err)
	}
	if err := s.engine.Play(); err != nil {
		return fmt.Errorf("%w: play: %v", ErrEngineFailure, err)
	}

	s.generation++
	gen := s.generation
	s.session = &models.PlaybackSession{
		Item:          item,
		Plan:          *plan,
		AudioIndex:    opts.AudioIndex,
		SubtitleIndex: opts.SubtitleIndex,
	}
	s.reporter = progress.NewReporter(s.reports, item.ID, plan.Source.ID, plan.PlaySessionID, plan.Method, item.RuntimeMs())
	s.cues = nil
	s.nativeSubs = false
	s.activeCue = ""
	s.seeking = false
	s.nextItem = nil
	s.osdState = osd.Hidden()
	s.lastInput = time.Now()

	timerCtx, cancel := context.WithCancel(context.Background())
	s.cancelTimers = cancel

	startMs := opts.StartPositionMs
	reporter := s.reporter
	go reporter.ReportStart(timerCtx, startMs)
	go reporter.Run(timerCtx, s.cfg.ProgressInterval, s.progressState)
	go s.cueLoop(timerCtx)
	go s.osdLoop(timerCtx)

	if plan.Subtitle != nil && !plan.Subtitle.BurnedIn {
		sub := plan.Subtitle.Stream
		go s.attachSubtitle(timerCtx, gen, sub)
	}
	if item.IsEpisode() {
		go s.prefetchNext(timerCtx, gen, item)
	}

	log.Printf("[playback] started %q (%s) via %s", item.Name, item.ID, plan.Method)
	return nil
}

// Stop ends the session, reporting the final position.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Service) stopLocked() {
	if s.session == nil {
		return
	}
	if s.cancelTimers != nil {
		s.cancelTimers()
		s.cancelTimers = nil
	}

	pos := s.engine.PositionMs()
	reporter := s.reporter
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		reporter.ReportStop(ctx, pos)
	}()

	if err := s.engine.Stop(); err != nil {
		log.Printf("[playback] engine stop: %v", err)
	}
	log.Printf("[playback] stopped %s at %dms", s.session.Item.ID, pos)

	s.session = nil
	s.reporter = nil
	s.cues = nil
	s.nativeSubs = false
	s.activeCue = ""
	s.seeking = false
	s.nextItem = nil
	s.osdState = osd.Hidden()
	s.generation++
}

// HandleInput feeds one remote event through the OSD machine and applies the
// resulting effects. false means the input was not consumed and the hosting
// screen should handle it (Back while the OSD is hidden).
func (s *Service) HandleInput(ev osd.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return false
	}
	s.lastInput = time.Now()
	return s.dispatchLocked(ev)
}

func (s *Service) dispatchLocked(ev osd.Event) bool {
	next, effects := osd.Transition(s.osdState, ev, s.osdEnvLocked())
	s.osdState = next

	consumed := true
	for _, eff := range effects {
		if eff.Kind == osd.EffectDelegateBack {
			consumed = false
			continue
		}
		s.applyEffectLocked(eff)
	}
	return consumed
}

func (s *Service) osdEnvLocked() osd.Env {
	env := osd.Env{
		PositionMs: s.engine.PositionMs(),
		DurationMs: s.durationMsLocked(),
		SeekStepMs: s.cfg.SeekStepMs,
	}
	if s.session != nil {
		if s.session.Item.IsEpisode() {
			env.ButtonCount = 2
		}
		env.AudioTrackCount = len(s.session.Plan.Source.StreamsOfType(models.StreamTypeAudio))
		env.SubtitleTrackCount = len(s.session.Plan.Source.StreamsOfType(models.StreamTypeSubtitle))
	}
	return env
}

func (s *Service) durationMsLocked() int64 {
	if d := s.engine.DurationMs(); d > 0 {
		return d
	}
	if s.session != nil {
		return s.session.Item.RuntimeMs()
	}
	return 0
}

func (s *Service) applyEffectLocked(eff osd.Effect) {
	switch eff.Kind {
	case osd.EffectTogglePause:
		s.togglePauseLocked()
	case osd.EffectCommitSeek:
		s.seeking = true
		go s.commitSeek(s.generation, eff.SeekToMs)
	case osd.EffectSwitchAudio:
		s.switchAudioLocked(eff.TrackOrdinal)
	case osd.EffectSwitchSubtitle:
		subs := s.session.Plan.Source.StreamsOfType(models.StreamTypeSubtitle)
		if eff.TrackOrdinal >= 0 && eff.TrackOrdinal < len(subs) {
			st := subs[eff.TrackOrdinal]
			s.teardownSubtitlesLocked()
			go s.attachSubtitle(context.Background(), s.generation, st)
		}
	case osd.EffectSubtitleOff:
		s.teardownSubtitlesLocked()
		s.session.SubtitleIndex = nil
	case osd.EffectAdjustOffset:
		s.adjustOffsetLocked(eff.OffsetSteps)
	case osd.EffectNavigateNext:
		gen := s.generation
		go func() {
			if !s.advanceNext(gen) {
				log.Printf("[playback] already at the last episode")
			}
		}()
	case osd.EffectNavigatePrevious:
		go s.navigatePrevious(s.generation)
	}
}

func (s *Service) togglePauseLocked() {
	pos := s.engine.PositionMs()
	reporter := s.reporter
	if s.engine.Paused() {
		if err := s.engine.Play(); err != nil {
			log.Printf("[playback] resume failed: %v", err)
			return
		}
		go reporter.ReportPauseChange(context.Background(), pos, false)
		return
	}
	if err := s.engine.Pause(); err != nil {
		log.Printf("[playback] pause failed: %v", err)
		return
	}
	go reporter.ReportPauseChange(context.Background(), pos, true)
}

func (s *Service) commitSeek(gen uint64, toMs int64) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SeekCommitTimeout)
	defer cancel()
	err := s.engine.SeekTo(ctx, toMs)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return
	}
	s.seeking = false
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Printf("[playback] %v (target %dms)", ErrSeekTimeout, toMs)
		} else {
			log.Printf("[playback] seek failed: %v", err)
		}
	}
}

func (s *Service) nativeAudio(codec string) bool {
	for _, c := range s.cfg.NativeAudioCodecs {
		if strings.EqualFold(c, codec) {
			return true
		}
	}
	return false
}

// switchAudioLocked switches tracks in-container when the codec allows it,
// otherwise restarts the session with an audio override at the same position.
func (s *Service) switchAudioLocked(ordinal int) {
	audio := s.session.Plan.Source.StreamsOfType(models.StreamTypeAudio)
	if ordinal < 0 || ordinal >= len(audio) {
		return
	}
	st := audio[ordinal]
	idx := st.Index
	if s.session.AudioIndex != nil && *s.session.AudioIndex == idx {
		return
	}

	if s.session.Plan.Method == models.PlayMethodDirectPlay && s.nativeAudio(st.Codec) {
		if err := s.engine.SetAudioTrack(ordinal); err == nil {
			s.session.AudioIndex = &idx
			log.Printf("[playback] switched audio to stream %d in-container", idx)
			return
		}
		log.Printf("[playback] native audio switch failed, restarting")
	}
	go s.restartWith(s.generation, func(opts *stream.Options) { opts.AudioIndex = &idx })
}

// restartWith rebuilds the session with mutated overrides, preserving the
// play position.
func (s *Service) restartWith(gen uint64, mutate func(*stream.Options)) {
	s.mu.Lock()
	if s.generation != gen || s.session == nil {
		s.mu.Unlock()
		return
	}
	item := s.session.Item
	opts := s.currentOptsLocked()
	opts.StartPositionMs = s.engine.PositionMs()
	mutate(&opts)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.Start(ctx, item, opts); err != nil {
		log.Printf("[playback] restart failed: %v", err)
	}
}

func (s *Service) currentOptsLocked() stream.Options {
	opts := stream.Options{
		PreferredSourceID: s.session.Plan.Source.ID,
		AudioIndex:        s.session.AudioIndex,
		SubtitleIndex:     s.session.SubtitleIndex,
	}
	if s.session.Plan.Subtitle != nil && s.session.Plan.Subtitle.BurnedIn {
		opts.BurnInSubtitle = true
	}
	return opts
}

func (s *Service) teardownSubtitlesLocked() {
	s.cues = nil
	s.activeCue = ""
	if s.nativeSubs {
		if err := s.engine.DisableSubtitles(); err != nil {
			log.Printf("[playback] disable subtitles: %v", err)
		}
		s.nativeSubs = false
	}
	_ = s.engine.ShowSubtitleText("")
}

// attachSubtitle downloads and parses one subtitle stream. When parsing
// yields no cues an embedded track on a direct stream falls back to the
// engine's native renderer; anything else leaves subtitles off.
func (s *Service) attachSubtitle(ctx context.Context, gen uint64, st models.MediaStream) {
	s.mu.Lock()
	if s.generation != gen || s.session == nil {
		s.mu.Unlock()
		return
	}
	itemID := s.session.Item.ID
	sourceID := s.session.Plan.Source.ID
	method := s.session.Plan.Method
	s.mu.Unlock()

	cues, err := s.loader.Load(ctx, itemID, sourceID, st.Index)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen || s.session == nil {
		return
	}
	idx := st.Index

	if err == nil {
		s.cues = subtitles.NewEngine(cues)
		s.nativeSubs = false
		s.session.SubtitleIndex = &idx
		s.session.SubtitleOffsetMs = 0
		log.Printf("[playback] attached %d cues for stream %d", len(cues), idx)
		return
	}

	if errors.Is(err, subtitles.ErrNoCues) && !st.IsExternal && method == models.PlayMethodDirectPlay {
		if ordinal, ok := s.subtitleOrdinalLocked(idx); ok {
			if nerr := s.engine.SetSubtitleTrack(ordinal); nerr == nil {
				s.nativeSubs = true
				s.session.SubtitleIndex = &idx
				log.Printf("[playback] native renderer fallback for subtitle stream %d", idx)
				return
			}
		}
	}

	s.session.SubtitleIndex = nil
	log.Printf("[playback] subtitles unavailable for stream %d: %v", idx, err)
}

func (s *Service) subtitleOrdinalLocked(index int) (int, bool) {
	for i, st := range s.session.Plan.Source.StreamsOfType(models.StreamTypeSubtitle) {
		if st.Index == index {
			return i, true
		}
	}
	return 0, false
}

func (s *Service) adjustOffsetLocked(steps int) {
	if s.session.Plan.Subtitle != nil && s.session.Plan.Subtitle.BurnedIn {
		log.Printf("[playback] %v: burned-in track", subtitles.ErrOffsetUnsupported)
		return
	}
	if s.nativeSubs || s.cues == nil {
		log.Printf("[playback] %v: no parsed track active", subtitles.ErrOffsetUnsupported)
		return
	}
	s.session.SubtitleOffsetMs = s.cues.AdjustOffset(steps)
}

// advanceNext starts the following episode, preferring the prefetched one.
// Returns false when there is nothing to advance to.
func (s *Service) advanceNext(gen uint64) bool {
	s.mu.Lock()
	if s.generation != gen || s.session == nil {
		s.mu.Unlock()
		return true
	}
	current := s.session.Item
	next := s.nextItem
	s.mu.Unlock()

	if !current.IsEpisode() {
		return false
	}
	if next == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		target, restart, err := s.navigator.Resolve(ctx, current, episodes.Next, 0)
		if err != nil {
			if !errors.Is(err, episodes.ErrEndOfSeries) {
				log.Printf("[playback] next episode lookup failed: %v", err)
			}
			return false
		}
		if restart {
			return false
		}
		next = &target
	}
	s.startFresh(*next)
	return true
}

func (s *Service) navigatePrevious(gen uint64) {
	s.mu.Lock()
	if s.generation != gen || s.session == nil {
		s.mu.Unlock()
		return
	}
	current := s.session.Item
	elapsed := s.engine.PositionMs()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	target, restart, err := s.navigator.Resolve(ctx, current, episodes.Previous, elapsed)
	if err != nil {
		if errors.Is(err, episodes.ErrEndOfSeries) {
			log.Printf("[playback] already at the first episode")
		} else {
			log.Printf("[playback] previous episode lookup failed: %v", err)
		}
		return
	}
	if restart {
		s.mu.Lock()
		if s.generation == gen && s.session != nil {
			s.seeking = true
			go s.commitSeek(gen, 0)
		}
		s.mu.Unlock()
		return
	}
	s.startFresh(target)
}

func (s *Service) startFresh(item models.MediaItem) {
	// adjacent episodes start at the beginning regardless of stored resume
	item.ResumePositionTicks = 0
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.Start(ctx, item, stream.Options{}); err != nil {
		log.Printf("[playback] episode switch failed: %v", err)
	}
}

func (s *Service) prefetchNext(ctx context.Context, gen uint64, item models.MediaItem) {
	target, restart, err := s.navigator.Resolve(ctx, item, episodes.Next, 0)
	if err != nil || restart {
		return
	}
	s.mu.Lock()
	if s.generation == gen && s.session != nil {
		s.nextItem = &target
	}
	s.mu.Unlock()
}

// OnEngineEvent ingests asynchronous engine notifications.
func (s *Service) OnEngineEvent(ev Event) {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return
	}
	gen := s.generation
	reporter := s.reporter
	s.mu.Unlock()

	switch ev.Kind {
	case EventCompleted:
		reporter.MarkFinished(context.Background())
		go func() {
			if !s.advanceNext(gen) {
				s.Stop()
			}
		}()
	case EventFailed:
		log.Printf("[playback] %v: %v", ErrEngineFailure, ev.Err)
		s.Stop()
	}
}

func (s *Service) progressState() progress.State {
	s.mu.Lock()
	seeking := s.seeking
	s.mu.Unlock()
	return progress.State{
		PositionMs: s.engine.PositionMs(),
		Paused:     s.engine.Paused(),
		Playing:    s.engine.Playing(),
		Seeking:    seeking,
	}
}

func (s *Service) cueLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CueTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.cues == nil || s.nativeSubs || s.seeking {
				s.mu.Unlock()
				continue
			}
			text, changed := s.cues.ActiveCueAt(s.engine.PositionMs())
			if changed {
				s.activeCue = text
				if err := s.engine.ShowSubtitleText(text); err != nil {
					log.Printf("[playback] show subtitle: %v", err)
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *Service) osdLoop(ctx context.Context) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			visible := s.osdState.Mode == osd.ModeVisible || s.osdState.Mode == osd.ModeSeeking
			if visible && time.Since(s.lastInput) >= s.cfg.OSDHideDelay {
				s.dispatchLocked(osd.EventTimeout)
			}
			s.mu.Unlock()
		}
	}
}
