package intakeclient

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultDisplayInterval is how long a success stays on screen.
const DefaultDisplayInterval = 5 * time.Second

// ErrSubmissionInFlight rejects a submit while another one is running.
var ErrSubmissionInFlight = errors.New("a submission is already in progress")

// State of a form's submission.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSubmitting:
		return "submitting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Status is what the form renders.
type Status struct {
	State   State
	ID      string
	Message string
	Errors  []FieldError
}

// Submitter drives one form: Idle -> Submitting -> Succeeded | Failed.
// Succeeded returns to Idle after the display interval; Failed stays until
// Edit or the next submit. Only one submission runs at a time.
type Submitter struct {
	client   *Client
	display  time.Duration
	onChange func(Status)

	mu     sync.Mutex
	status Status
	reset  *time.Timer
	gen    uint64
}

type SubmitterOption func(*Submitter)

func WithDisplayInterval(d time.Duration) SubmitterOption {
	return func(s *Submitter) {
		if d > 0 {
			s.display = d
		}
	}
}

// WithOnChange is called after every transition, outside the lock.
func WithOnChange(fn func(Status)) SubmitterOption {
	return func(s *Submitter) { s.onChange = fn }
}

func NewSubmitter(client *Client, opts ...SubmitterOption) *Submitter {
	s := &Submitter{client: client, display: DefaultDisplayInterval}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status returns the current state.
func (s *Submitter) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SubmitApplication validates locally and, when valid, submits a.
// An invalid form leaves the state untouched.
func (s *Submitter) SubmitApplication(ctx context.Context, a ApplicationSubmission) (Result, error) {
	return s.submit(ctx, func() (Result, error) { return invalid(a.Validate()) }, func(ctx context.Context) (Result, error) {
		return s.client.post(ctx, a.Prepare())
	})
}

// SubmitConsent is SubmitApplication for the consent form.
func (s *Submitter) SubmitConsent(ctx context.Context, c ConsentSubmission) (Result, error) {
	return s.submit(ctx, func() (Result, error) { return invalid(c.Validate()) }, func(ctx context.Context) (Result, error) {
		return s.client.post(ctx, c.Prepare())
	})
}

// Edit clears a failure, as when the user changes a field.
func (s *Submitter) Edit() {
	s.mu.Lock()
	if s.status.State != StateFailed {
		s.mu.Unlock()
		return
	}
	s.status = Status{State: StateIdle}
	st := s.status
	s.mu.Unlock()
	s.notify(st)
}

func (s *Submitter) submit(ctx context.Context, validate func() (Result, error), send func(context.Context) (Result, error)) (Result, error) {
	s.mu.Lock()
	if s.status.State == StateSubmitting {
		s.mu.Unlock()
		return Result{}, ErrSubmissionInFlight
	}
	if res, err := validate(); err != nil {
		s.mu.Unlock()
		return res, err
	}
	if s.reset != nil {
		s.reset.Stop()
		s.reset = nil
	}
	s.gen++
	gen := s.gen
	s.status = Status{State: StateSubmitting}
	s.mu.Unlock()
	s.notify(Status{State: StateSubmitting})

	res, err := send(ctx)

	s.mu.Lock()
	if res.Success {
		s.status = Status{State: StateSucceeded, ID: res.ID, Message: res.Message}
		s.reset = time.AfterFunc(s.display, func() { s.expire(gen) })
	} else {
		s.status = Status{State: StateFailed, Message: res.Message, Errors: res.Errors}
	}
	st := s.status
	s.mu.Unlock()
	s.notify(st)
	return res, err
}

func (s *Submitter) expire(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.status.State != StateSucceeded {
		s.mu.Unlock()
		return
	}
	s.status = Status{State: StateIdle}
	s.reset = nil
	s.mu.Unlock()
	s.notify(Status{State: StateIdle})
}

func (s *Submitter) notify(st Status) {
	if s.onChange != nil {
		s.onChange(st)
	}
}
