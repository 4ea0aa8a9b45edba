// Package signup drives the multi-step account creation flow.
//
// The Wizard holds the step index and the data collected so far. Each step
// validates its own input before the data is merged and the wizard advances;
// the account step also asks the API whether the username and email are
// free. The last step submits everything through SignUp.
package signup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lifeflow/lifeflow/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	StepName = iota + 1
	StepBirth
	StepGender
	StepAccount
	StepPassword
)

// StepCount is the number of steps; StepPassword is the last one.
const StepCount = StepPassword

var (
	ErrStepMismatch = errors.New("input does not belong to the current step")
	ErrNotFinalStep = errors.New("wizard is not on the final step")
)

// Service is the slice of the account API the wizard needs.
type Service interface {
	CheckUsername(ctx context.Context, username string) (bool, error)
	CheckEmail(ctx context.Context, email string) (bool, error)
	SignUp(ctx context.Context, req models.SignUpRequest) (*models.AuthResponse, error)
}

// Data is the partial form collected across steps.
type Data struct {
	FirstName    string
	LastName     string
	DateOfBirth  time.Time
	Gender       string
	Username     string
	EmailAddress string
	Password     string
}

// StepInput is implemented by the per-step input types.
type StepInput interface {
	step() int
	apply(*Data)
}

type NameInput struct {
	FirstName string `label:"First name" validate:"required,min=2"`
	LastName  string `label:"Last name" validate:"required,min=2"`
}

type BirthInput struct {
	DateOfBirth time.Time `label:"Date of birth" validate:"required,notfuture,minage=13"`
}

type GenderInput struct {
	Gender string `label:"Gender" validate:"oneof=MALE FEMALE OTHER"`
}

type AccountInput struct {
	Username     string `label:"Username" validate:"required,min=3,max=16"`
	EmailAddress string `label:"Email address" validate:"required,email"`
}

type PasswordInput struct {
	Password string `label:"Password" validate:"required,min=8"`
	Confirm  string `label:"Confirm password" validate:"required,eqfield=Password"`
}

func (NameInput) step() int     { return StepName }
func (BirthInput) step() int    { return StepBirth }
func (GenderInput) step() int   { return StepGender }
func (AccountInput) step() int  { return StepAccount }
func (PasswordInput) step() int { return StepPassword }

func (in NameInput) apply(d *Data) {
	d.FirstName = in.FirstName
	d.LastName = in.LastName
}

func (in BirthInput) apply(d *Data) { d.DateOfBirth = in.DateOfBirth }

func (in GenderInput) apply(d *Data) { d.Gender = in.Gender }

func (in AccountInput) apply(d *Data) {
	d.Username = in.Username
	d.EmailAddress = in.EmailAddress
}

func (in PasswordInput) apply(d *Data) { d.Password = in.Password }

type Wizard struct {
	service  Service
	validate *validator.Validate
	logger   *logrus.Logger

	mu   sync.Mutex
	step int
	data Data
}

type Option func(*wizardOptions)

type wizardOptions struct {
	now func() time.Time
}

// WithClock fixes the time used by the date-of-birth rules.
func WithClock(now func() time.Time) Option {
	return func(o *wizardOptions) {
		o.now = now
	}
}

func New(service Service, logger *logrus.Logger, opts ...Option) *Wizard {
	o := wizardOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return &Wizard{
		service:  service,
		validate: newValidator(o.now),
		logger:   logger,
		step:     StepName,
	}
}

func (w *Wizard) Step() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

func (w *Wizard) Data() Data {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.data
}

// Update merges a partial change into the collected data without
// validating it or moving between steps.
func (w *Wizard) Update(fn func(*Data)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(&w.data)
}

// Back returns to the previous step. Collected data is kept.
func (w *Wizard) Back() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step > StepName {
		w.step--
	}
}

// Next validates the input of the current step, merges it and advances.
// The final step is completed with Submit.
func (w *Wizard) Next(ctx context.Context, input StepInput) error {
	current := w.Step()
	if input.step() != current || current == StepPassword {
		return fmt.Errorf("%w: at step %d", ErrStepMismatch, current)
	}

	if err := validateStruct(w.validate, input); err != nil {
		return err
	}

	if account, ok := input.(AccountInput); ok {
		if err := w.checkAvailability(ctx, account); err != nil {
			return err
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != current {
		return fmt.Errorf("%w: step changed to %d", ErrStepMismatch, w.step)
	}
	input.apply(&w.data)
	w.step++

	w.logger.WithField("step", w.step).Debug("Sign-up step completed")
	return nil
}

// Submit validates the password step and creates the account. On failure
// the wizard stays on the final step.
func (w *Wizard) Submit(ctx context.Context, input PasswordInput) (*models.AuthResponse, error) {
	if w.Step() != StepPassword {
		return nil, ErrNotFinalStep
	}

	if err := validateStruct(w.validate, input); err != nil {
		return nil, err
	}

	w.Update(input.apply)
	data := w.Data()

	res, err := w.service.SignUp(ctx, models.SignUpRequest{
		FirstName:    data.FirstName,
		LastName:     data.LastName,
		DateOfBirth:  data.DateOfBirth,
		Gender:       data.Gender,
		Username:     data.Username,
		EmailAddress: data.EmailAddress,
		Password:     data.Password,
	})
	if err != nil {
		w.logger.WithError(err).Info("Sign-up submission failed")
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	return res, nil
}

func (w *Wizard) checkAvailability(ctx context.Context, in AccountInput) error {
	conflicts := &ValidationError{Fields: map[string]string{}}

	free, err := w.service.CheckUsername(ctx, in.Username)
	if err != nil {
		return fmt.Errorf("failed to check username: %w", err)
	}
	if !free {
		conflicts.Fields["Username"] = "Username already exists"
	}

	free, err = w.service.CheckEmail(ctx, in.EmailAddress)
	if err != nil {
		return fmt.Errorf("failed to check email address: %w", err)
	}
	if !free {
		conflicts.Fields["EmailAddress"] = "Email address already exists"
	}

	if len(conflicts.Fields) > 0 {
		return conflicts
	}
	return nil
}
