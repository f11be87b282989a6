// Package broadcast sends one message to many recipients in provider-sized
// groups.
package broadcast

import (
	"context"
	"iter"
	"slices"

	"go.uber.org/zap"
	"sms-broadcaster/internal/sms"
)

// Groups yields consecutive groups of at most size numbers. The sequence is
// restartable and never yields an empty group.
func Groups(numbers []string, size int) iter.Seq[[]string] {
	return slices.Chunk(numbers, size)
}

// Result reports a finished broadcast.
type Result struct {
	// Recipients is the number of subscribers processed, failed groups included.
	Recipients       int
	Groups           int
	FailedGroups     int
	FailedRecipients int
}

// Delivered is the number of recipients in groups the provider accepted.
func (r Result) Delivered() int {
	return r.Recipients - r.FailedRecipients
}

type Batcher struct {
	sender     sms.Sender
	originator string
	groupSize  int
	log        *zap.Logger
}

func NewBatcher(sender sms.Sender, originator string, log *zap.Logger) *Batcher {
	return &Batcher{
		sender:     sender,
		originator: originator,
		groupSize:  sms.MaxRecipients,
		log:        log,
	}
}

// Broadcast sends message to every number, one provider call per group.
// A failed group is logged and counted and the remaining groups are still
// sent. Groups left unsent because ctx ended count as failed.
func (b *Batcher) Broadcast(ctx context.Context, message string, numbers []string) Result {
	var res Result
	for group := range Groups(numbers, b.groupSize) {
		res.Groups++
		res.Recipients += len(group)

		if err := ctx.Err(); err != nil {
			res.FailedGroups++
			res.FailedRecipients += len(group)
			continue
		}

		if err := b.sender.Send(ctx, b.originator, group, message); err != nil {
			res.FailedGroups++
			res.FailedRecipients += len(group)
			b.log.Error("failed to send broadcast group",
				zap.Int("group", res.Groups),
				zap.Int("size", len(group)),
				zap.Error(err),
			)
		}
	}

	b.log.Info("broadcast finished",
		zap.Int("recipients", res.Recipients),
		zap.Int("groups", res.Groups),
		zap.Int("failed_groups", res.FailedGroups),
	)
	return res
}
