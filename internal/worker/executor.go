package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/maumercado/dbqueue/internal/logger"
	"github.com/maumercado/dbqueue/internal/metrics"
	"github.com/maumercado/dbqueue/internal/payload"
)

// Handler is a function that processes a task's decoded arguments. Its
// return value becomes the task's results blob on success. Handlers may
// run more than once for the same task if a worker dies before saving;
// side effects must tolerate that.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Executor runs task payloads through registered handlers. It is the
// boundary where the opaque function and kwargs blobs are interpreted:
// the function blob names a handler, the kwargs blob carries its
// arguments.
type Executor struct {
	handlers map[string]Handler
}

// NewExecutor creates an executor with the given handler table.
func NewExecutor(handlers map[string]Handler) *Executor {
	if handlers == nil {
		handlers = make(map[string]Handler)
	}
	return &Executor{handlers: handlers}
}

// Register registers a handler under a name.
func (e *Executor) Register(name string, handler Handler) {
	e.handlers[name] = handler
}

// HasHandler checks if a handler is registered under the name.
func (e *Executor) HasHandler(name string) bool {
	_, ok := e.handlers[name]
	return ok
}

// HandlerNames returns all registered handler names.
func (e *Executor) HandlerNames() []string {
	names := make([]string, 0, len(e.handlers))
	for name := range e.handlers {
		names = append(names, name)
	}
	return names
}

// Execute decodes the payload blobs, runs the named handler, and encodes
// its return value. A missing handler, an argument decode failure, a
// handler error, or a panic all surface as an error; the caller records
// the error text as the task's outcome.
func (e *Executor) Execute(ctx context.Context, function, kwargs []byte) (result []byte, err error) {
	name := payload.DecodeFunction(function)

	// Panic recovery
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			logger.Error().
				Str("function", name).
				Interface("panic", r).
				Str("stack", string(stack)).
				Msg("task handler panicked")
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	handler, ok := e.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotFound, name)
	}

	args, err := payload.DecodeArgs(kwargs)
	if err != nil {
		return nil, err
	}

	logger.Debug().Str("function", name).Msg("executing task")

	start := time.Now()
	out, err := handler(ctx, args)
	duration := time.Since(start)
	metrics.TaskDuration.Observe(duration.Seconds())

	if err != nil {
		logger.Error().Err(err).Str("function", name).Dur("duration", duration).Msg("task failed")
		return nil, err
	}

	result, err = payload.EncodeResult(out)
	if err != nil {
		return nil, err
	}

	logger.Debug().Str("function", name).Dur("duration", duration).Msg("task executed successfully")
	return result, nil
}

// Error definitions
var ErrHandlerNotFound = errors.New("handler not found for function")
