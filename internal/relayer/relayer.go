package relayer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/mselser95/reservation-escrow/internal/proof"
	"go.uber.org/zap"
)

// ErrQueueFull is returned by Submit when the worker is saturated.
var ErrQueueFull = errors.New("relayer queue is full")

// Relayer turns forwarded platform emails into signed proofs. Submissions
// are queued and processed by a single worker; callers poll the status by id
// and fetch the proof by email hash.
type Relayer struct {
	signer *proof.Signer
	logger *zap.Logger
	now    func() time.Time
	delay  time.Duration

	queue chan job
	ctx   context.Context
	wg    sync.WaitGroup

	mu       sync.RWMutex
	statuses map[string]*ProcessingStatus
	proofs   map[string]*Record
}

type job struct {
	id         string
	submission Submission
	command    Command
}

// Config holds relayer configuration.
type Config struct {
	Signer          *proof.Signer
	Logger          *zap.Logger
	QueueSize       int
	ProcessingDelay time.Duration // simulated extraction latency
	Now             func() time.Time
}

// New creates a relayer. Start must be called before submissions are
// processed.
func New(cfg *Config) (*Relayer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Signer == nil {
		return nil, fmt.Errorf("signer cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 128
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Relayer{
		signer:   cfg.Signer,
		logger:   cfg.Logger,
		now:      now,
		delay:    cfg.ProcessingDelay,
		queue:    make(chan job, queueSize),
		statuses: make(map[string]*ProcessingStatus),
		proofs:   make(map[string]*Record),
	}, nil
}

// Attester returns the address proofs are signed with.
func (r *Relayer) Attester() common.Address {
	return r.signer.Address()
}

// Start starts the processing worker. It stops when ctx is cancelled.
func (r *Relayer) Start(ctx context.Context) {
	r.ctx = ctx
	r.logger.Info("relayer-starting", zap.String("attester", r.signer.Address().Hex()))

	r.wg.Add(1)
	go r.processLoop()
}

// Wait blocks until the worker has exited.
func (r *Relayer) Wait() {
	r.wg.Wait()
}

// Submit parses the subject and queues the email for processing.
func (r *Relayer) Submit(s Submission) (*ProcessingStatus, error) {
	cmd, err := ParseCommand(s.Subject)
	if err != nil {
		SubmissionsTotal.WithLabelValues("unknown", "rejected").Inc()
		return nil, err
	}

	now := r.now()
	status := &ProcessingStatus{
		ID:        uuid.NewString(),
		Status:    StatusProcessing,
		Command:   cmd,
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	r.statuses[status.ID] = status
	r.mu.Unlock()

	select {
	case r.queue <- job{id: status.ID, submission: s, command: cmd}:
	default:
		r.mu.Lock()
		delete(r.statuses, status.ID)
		r.mu.Unlock()
		SubmissionsTotal.WithLabelValues(string(cmd.Type), "rejected").Inc()
		return nil, ErrQueueFull
	}
	QueueDepth.Set(float64(len(r.queue)))

	r.logger.Info("email-submitted",
		zap.String("submission-id", status.ID),
		zap.String("command", string(cmd.Type)),
		zap.String("from", s.From))

	return status.clone(), nil
}

func (r *Relayer) processLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Info("relayer-stopping")
			return
		case j := <-r.queue:
			QueueDepth.Set(float64(len(r.queue)))

			if r.delay > 0 {
				select {
				case <-r.ctx.Done():
					return
				case <-time.After(r.delay):
				}
			}

			start := time.Now()
			hash, err := r.process(j)
			ProcessingDurationSeconds.Observe(time.Since(start).Seconds())

			if err != nil {
				SubmissionsTotal.WithLabelValues(string(j.command.Type), "failed").Inc()
				r.logger.Warn("email-processing-failed",
					zap.String("submission-id", j.id),
					zap.Error(err))
				r.finish(j.id, StatusFailed, "", err)
				continue
			}

			SubmissionsTotal.WithLabelValues(string(j.command.Type), "completed").Inc()
			r.logger.Info("email-processed",
				zap.String("submission-id", j.id),
				zap.String("email-hash", hash))
			r.finish(j.id, StatusCompleted, hash, nil)
		}
	}
}

func (r *Relayer) process(j job) (string, error) {
	platform, err := PlatformFromSender(j.submission.From)
	if err != nil {
		return "", err
	}

	now := r.now()
	d, err := parseBody(j.submission.Body, now)
	if err != nil {
		return "", err
	}

	hash := EmailHash(j.submission)
	_, err = r.sign(hash, buildPayload(j.command, platform, d, hash, now))
	if err != nil {
		return "", err
	}
	return hash, nil
}

func (r *Relayer) sign(emailHash string, payload proof.Payload) (*Record, error) {
	p, err := r.signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("sign proof: %w", err)
	}

	rec := &Record{
		EmailHash: emailHash,
		Proof:     json.RawMessage(p),
		Payload:   payload,
		CreatedAt: r.now(),
	}

	r.mu.Lock()
	r.proofs[strings.ToLower(emailHash)] = rec
	r.mu.Unlock()

	ProofsSignedTotal.WithLabelValues(payload.Type).Inc()
	return rec, nil
}

func (r *Relayer) finish(id string, s Status, hash string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	status, ok := r.statuses[id]
	if !ok {
		return
	}
	status.Status = s
	status.UpdatedAt = r.now()
	status.EmailHash = hash
	if err != nil {
		status.Error = err.Error()
	}
}

// Status returns the processing status of a submission.
func (r *Relayer) Status(id string) (*ProcessingStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.statuses[id]
	if !ok {
		return nil, false
	}
	return s.clone(), true
}

// Proof returns the stored proof for an email hash.
func (r *Relayer) Proof(emailHash string) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.proofs[strings.ToLower(emailHash)]
	if !ok {
		return nil, false
	}
	out := *rec
	return &out, true
}

// Proofs returns every stored proof, oldest first.
func (r *Relayer) Proofs() []Record {
	r.mu.RLock()
	out := make([]Record, 0, len(r.proofs))
	for _, rec := range r.proofs {
		out = append(out, *rec)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].EmailHash < out[j].EmailHash
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Generate signs a test proof directly from structured input.
func (r *Relayer) Generate(req GenerateRequest) (*Record, error) {
	platform, err := proof.ParsePlatform(req.Platform)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.RestaurantName) == "" {
		return nil, fmt.Errorf("restaurant_name is required")
	}

	var cmd Command
	switch req.ReservationType {
	case TypeConfirmation:
		cmd.Type = CommandList
	case TypeCancellation:
		cmd.Type = CommandCancel
	case TypeNewBooking:
		cmd.Type = CommandClaim
	default:
		return nil, fmt.Errorf("unknown reservation_type %q", req.ReservationType)
	}
	if req.ReservationID != "" {
		cmd.Params = []string{req.ReservationID}
	}

	now := r.now()
	d := details{
		Restaurant: strings.TrimSpace(req.RestaurantName),
		Time:       now.Add(defaultLeadTime).Truncate(time.Second),
		PartySize:  defaultPartySize,
	}
	if req.ReservationTime != nil {
		d.Time = req.ReservationTime.UTC()
	}
	if req.PartySize > 0 {
		d.PartySize = req.PartySize
	}

	payload := buildPayload(cmd, platform, d, "", now)
	hash := crypto.Keccak256Hash([]byte(fmt.Sprintf("%s-%s-%s-%d-test",
		platform, d.Restaurant, req.ReservationType, now.UnixNano()))).Hex()
	payload.EmailHash = hash

	rec, err := r.sign(hash, payload)
	if err != nil {
		return nil, err
	}

	r.logger.Info("test-proof-generated",
		zap.String("email-hash", hash),
		zap.String("type", payload.Type),
		zap.String("platform", string(platform)))
	return rec, nil
}

func (s *ProcessingStatus) clone() *ProcessingStatus {
	out := *s
	out.Command.Params = append([]string(nil), s.Command.Params...)
	return &out
}
