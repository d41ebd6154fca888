package cache

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s", jobID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

func UniqueUsersKey(issueID uuid.UUID, day time.Time) string {
	return fmt.Sprintf("issue:users:%s:%s", issueID, day.UTC().Format("2006-01-02"))
}
