package bunstore

import (
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func postHandlers() repository.ModelHandlers[*PostRecord] {
	return repository.ModelHandlers[*PostRecord]{
		NewRecord: func() *PostRecord { return &PostRecord{} },
		GetID: func(r *PostRecord) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID:         func(r *PostRecord, id uuid.UUID) { r.ID = id },
		GetIdentifier: func() string { return "id" },
	}
}

func likeHandlers() repository.ModelHandlers[*LikeRecord] {
	return repository.ModelHandlers[*LikeRecord]{
		NewRecord: func() *LikeRecord { return &LikeRecord{} },
		GetID: func(r *LikeRecord) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID:         func(r *LikeRecord, id uuid.UUID) { r.ID = id },
		GetIdentifier: func() string { return "id" },
	}
}

func followHandlers() repository.ModelHandlers[*FollowRecord] {
	return repository.ModelHandlers[*FollowRecord]{
		NewRecord: func() *FollowRecord { return &FollowRecord{} },
		GetID: func(r *FollowRecord) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID:         func(r *FollowRecord, id uuid.UUID) { r.ID = id },
		GetIdentifier: func() string { return "id" },
	}
}
