package jobs

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kiddychat/chat-server-go/internal/store"
)

// CleanupJob periodically sweeps expired sessions out of the store so
// memory is reclaimed even for sessions no client ever touches again.
type CleanupJob struct {
	sessions *store.SessionStore
	interval time.Duration
	done     chan struct{}
}

func NewCleanupJob(sessions *store.SessionStore, interval time.Duration) *CleanupJob {
	return &CleanupJob{
		sessions: sessions,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	if count := j.sessions.DeleteExpired(); count > 0 {
		log.Info().Int("count", count).Msg("cleaned up expired sessions")
	}
}
