package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/nexusholdings/nexus/internal/domain"
	"github.com/nexusholdings/nexus/internal/utils"
)

// SignalService relays activity over redis pub/sub.
type SignalService struct {
	rdb *redis.Client
}

func NewSignalService(redisClient *redis.Client) *SignalService {
	return &SignalService{
		rdb: redisClient,
	}
}

func (s *SignalService) Publish(ctx context.Context, activity domain.Activity) error {
	jsonstr, err := json.Marshal(activity)
	if err != nil {
		return err
	}

	return s.rdb.Publish(ctx, activity.Channel(), jsonstr).Err()
}

// Subscription selects activity channels. Channels match exactly. Prefixes
// match any channel starting with the prefix, taken literally.
type Subscription struct {
	Channels []string
	Prefixes []string
}

func (s Subscription) Empty() bool {
	return len(s.Channels) == 0 && len(s.Prefixes) == 0
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// PrefixPattern builds a redis glob matching channels that start with prefix.
func PrefixPattern(prefix string) string {
	return globEscaper.Replace(prefix) + "*"
}

func (s *SignalService) subscribe(ctx context.Context, sub Subscription) *redis.PubSub {
	pubsub := s.rdb.Subscribe(ctx, sub.Channels...)
	if len(sub.Prefixes) == 0 {
		return pubsub
	}

	patterns := make([]string, 0, len(sub.Prefixes))
	for _, prefix := range sub.Prefixes {
		patterns = append(patterns, PrefixPattern(prefix))
	}
	if err := pubsub.PSubscribe(ctx, patterns...); err != nil {
		utils.Warn("failed to subscribe to activity patterns", utils.ErrorField(err))
	}
	return pubsub
}

// Realtime forwards activity matching the latest subscription received on
// input until ctx is done or input is closed. Sends on output honor ctx.
func (s *SignalService) Realtime(ctx context.Context, input <-chan Subscription, output chan<- domain.Activity) {
	var pubsub *redis.PubSub
	var messages <-chan *redis.Message
	defer func() {
		if pubsub != nil {
			pubsub.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case sub, ok := <-input:
			if !ok {
				return
			}
			if pubsub != nil {
				pubsub.Close()
				pubsub, messages = nil, nil
			}
			if sub.Empty() {
				continue
			}
			pubsub = s.subscribe(ctx, sub)
			messages = pubsub.Channel()
		case msg, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			var activity domain.Activity
			if err := json.Unmarshal([]byte(msg.Payload), &activity); err != nil {
				utils.Warn("invalid activity message",
					utils.String("channel", msg.Channel),
					utils.ErrorField(err),
				)
				continue
			}
			select {
			case output <- activity:
			case <-ctx.Done():
				return
			}
		}
	}
}
