package repository

import "meeting_web/internal/storage"

type Repositories struct {
	User        UserRepository
	Room        RoomRepository
	Participant ParticipantRepository
	Transcript  TranscriptRepository
}

func NewRepositories(db *storage.PostgresDB) *Repositories {
	return &Repositories{
		User:        NewUserRepository(db),
		Room:        NewRoomRepository(db),
		Participant: NewParticipantRepository(db),
		Transcript:  NewTranscriptRepository(db),
	}
}
