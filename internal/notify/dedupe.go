package notify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/rs/zerolog"
)

// Guard is satisfied by redisclient.OnceGuard.
type Guard interface {
	Claim(ctx context.Context, key string) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

type dedupeSender struct {
	next  Sender
	guard Guard
	log   zerolog.Logger
}

// Deduplicate delivers each reported appointment state to a user at most once
// per guard window. It sits between the Dispatcher workers and the real
// Sender, so a failed delivery gives its claim back and a later identical
// message goes out. Messages without a DedupeKey and guard errors both fall
// through to next.
func Deduplicate(next Sender, guard Guard, log zerolog.Logger) Sender {
	return &dedupeSender{next: next, guard: guard, log: log}
}

func (s *dedupeSender) Deliver(ctx context.Context, msg Message) error {
	if msg.DedupeKey == "" {
		return s.next.Deliver(ctx, msg)
	}
	key := messageKey(msg)

	token, ok, err := s.guard.Claim(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("message_id", msg.ID).Msg("dedupe guard unavailable, sending anyway")
		return s.next.Deliver(ctx, msg)
	}
	if !ok {
		s.log.Debug().
			Str("message_id", msg.ID).
			Str("user_id", msg.RecipientUserID).
			Msg("duplicate notification suppressed")
		return nil
	}

	if err := s.next.Deliver(ctx, msg); err != nil {
		if relErr := s.guard.Release(ctx, key, token); relErr != nil {
			s.log.Warn().Err(relErr).Str("message_id", msg.ID).Msg("release dedupe claim")
		}
		return err
	}
	return nil
}

func messageKey(msg Message) string {
	sum := sha256.Sum256([]byte(msg.RecipientUserID + "\x00" + msg.DedupeKey + "\x00" + msg.Text))
	return hex.EncodeToString(sum[:])
}
