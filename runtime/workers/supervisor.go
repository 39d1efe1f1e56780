package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chat-broker/contract"
	"chat-broker/errors"
)

// Supervisor owns a context and a cancel function.
// Runs each worker in a goroutine, recovers panics, restarts crashed
// workers after a delay, and shuts down cleanly when the parent context
// is canceled.
type Supervisor struct {
	Cancel          context.CancelFunc
	wg              *sync.WaitGroup
	log             *slog.Logger
	restartInterval time.Duration
	workers         []contract.Worker
}

func NewSupervisor(log *slog.Logger, restartInterval time.Duration) *Supervisor {
	return &Supervisor{wg: &sync.WaitGroup{}, log: log, restartInterval: restartInterval}
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.workers = append(s.workers, worker...)
	return s
}

// Run starts every registered worker under a local cancellation trigger
// tied to the parent context and blocks until all of them finish.
func (s *Supervisor) Run(ctx context.Context) {
	supervisedCtx, cancel := context.WithCancel(ctx)
	s.Cancel = cancel
	defer s.Cancel()

	for _, worker := range s.workers {
		s.Start(supervisedCtx, worker)
	}
	s.wg.Wait()
}

// Start runs a worker under supervision. If its Run method panics, the
// supervisor recovers and restarts it; a failure in one worker must never
// stop the supervisor itself.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	workerName := contract.GetWorkerName(worker)

	go func() {
		defer s.wg.Done()

		for {
			if ctx.Err() != nil {
				s.log.Info(fmt.Sprintf("Stopping : %s", workerName))
				return
			}

			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = errors.ErrWorkerPanic
					}
				}()
				return worker.Run(ctx)
			}()

			if err == nil {
				// Terminated properly, never restart.
				s.log.Info(fmt.Sprintf("Worker finished : %s", workerName))
				return
			}

			if ctx.Err() != nil {
				s.log.Info("Worker stopped (context canceled)", "name", workerName)
				return
			}

			s.log.Warn("Worker crashed, restarting", "name", workerName, "error", err)
			select {
			case <-ctx.Done():
				// Priority stop: exit without waiting for the restart delay.
				return
			case <-time.After(s.restartInterval):
			}
		}
	}()
}

// Stop cancels the supervised context; Run keeps waiting until every
// goroutine has returned.
func (s *Supervisor) Stop() {
	if s.Cancel != nil {
		s.Cancel()
	}
}
