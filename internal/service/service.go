package service

import (
	"time"

	"meeting_web/internal/bus"
	"meeting_web/internal/repository"
	"meeting_web/pkg/config"
)

type Services struct {
	UserService      *UserService
	RoomService      *RoomService
	Coordinator      *RoomCoordinator
	Transcripts      *TranscriptService
	Sessions         *SessionManager
	Reaper           *IdleReaper
	WebSocketManager *WebSocketManager
}

func NewServices(repos *repository.Repositories, eventBus *bus.Bus, cfg *config.Config) *Services {
	sessions := NewSessionManager()
	locks := newRoomLocks()

	transcripts := NewTranscriptService(repos.Transcript, eventBus,
		time.Duration(cfg.Room.TranscriptIntervalMs)*time.Millisecond, cfg.Room.TranscriptHistoryLimit)
	admission := NewAdmissionService(repos.Room, repos.Participant, sessions, eventBus, cfg.Room.AdmitPolicy)
	reaper := NewIdleReaper(repos.Room, repos.Participant, transcripts, eventBus, locks,
		time.Duration(cfg.Room.IdleGraceSeconds)*time.Second)
	coordinator := NewRoomCoordinator(repos.Room, repos.Participant, admission, transcripts, reaper, eventBus, locks)

	return &Services{
		UserService:      NewUserService(repos.User),
		RoomService:      NewRoomService(repos.Room),
		Coordinator:      coordinator,
		Transcripts:      transcripts,
		Sessions:         sessions,
		Reaper:           reaper,
		WebSocketManager: NewWebSocketManager(coordinator),
	}
}
