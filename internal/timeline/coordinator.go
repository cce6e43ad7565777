package timeline

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/teamlinkhq/teamlink/internal/area"
	"github.com/teamlinkhq/teamlink/internal/attachment"
	"github.com/teamlinkhq/teamlink/internal/bridge"
	"github.com/teamlinkhq/teamlink/internal/hub"
	"github.com/teamlinkhq/teamlink/internal/linking"
	"github.com/teamlinkhq/teamlink/internal/message"
)

const shardCount = 32

// AreaDirectory answers area existence and membership questions.
type AreaDirectory interface {
	Get(ctx context.Context, areaID string) (area.Area, error)
	RoleOf(ctx context.Context, areaID, userID string) (area.Role, error)
}

// Store is the message persistence surface the coordinator writes through.
type Store interface {
	Append(ctx context.Context, input message.AppendInput) (message.Message, error)
	Get(ctx context.Context, areaID, messageID string) (message.Message, error)
	ListLatest(ctx context.Context, areaID string, limit int32) ([]message.Message, error)
	ListBefore(ctx context.Context, areaID string, before time.Time, limit int32) ([]message.Message, error)
	MarkEdited(ctx context.Context, areaID, messageID, authorID, body string, editedAt time.Time) (message.Message, error)
	MarkDeleted(ctx context.Context, areaID, messageID, actorID string, moderator bool, deletedAt time.Time) (message.Message, error)
}

// Broadcaster pushes events to live area subscribers.
type Broadcaster interface {
	Broadcast(areaID string, ev hub.Event)
}

// BindingResolver looks up area-to-group links.
type BindingResolver interface {
	ByArea(ctx context.Context, areaID string) (linking.Binding, error)
	ByGroup(ctx context.Context, groupID string) (linking.Binding, error)
}

// RelaySink accepts messages bound for the external platform.
type RelaySink interface {
	Enqueue(msg bridge.OutboundMessage)
}

// AttachmentDirectory resolves committed attachments for reference checks.
type AttachmentDirectory interface {
	Get(ctx context.Context, areaID, attachmentID string) (attachment.Attachment, error)
}

type shard struct {
	mu sync.Mutex
	// lastTick holds the newest timestamp handed out per area.
	lastTick map[string]time.Time
}

// Coordinator serializes timeline writes per area. Holding the area's lock
// across the durable write and the broadcast guarantees subscribers observe
// events in exactly the persisted order, and the per-area clock guarantees
// strictly increasing created_at values even when the wall clock stalls.
type Coordinator struct {
	store       Store
	areas       AreaDirectory
	hub         Broadcaster
	bindings    BindingResolver
	relay       RelaySink
	attachments AttachmentDirectory
	logger      *slog.Logger
	now         func() time.Time

	shards [shardCount]*shard
}

func NewCoordinator(log *slog.Logger, store Store, areas AreaDirectory, b Broadcaster, bindings BindingResolver, relay RelaySink, attachments AttachmentDirectory) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	c := &Coordinator{
		store:       store,
		areas:       areas,
		hub:         b,
		bindings:    bindings,
		relay:       relay,
		attachments: attachments,
		logger:      log.With(slog.String("service", "timeline")),
		now:         time.Now,
	}
	for i := range c.shards {
		c.shards[i] = &shard{lastTick: make(map[string]time.Time)}
	}
	return c
}

func (c *Coordinator) shardFor(areaID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(areaID))
	return c.shards[h.Sum32()%shardCount]
}

// tick returns the next timestamp for the area. The caller must hold the
// area's shard lock.
func (s *shard) tick(areaID string, wall time.Time) time.Time {
	if last, ok := s.lastTick[areaID]; ok && !wall.After(last) {
		wall = last.Add(time.Nanosecond)
	}
	s.lastTick[areaID] = wall
	return wall
}

// commit assigns the area's next timestamp, persists the message and
// broadcasts it, all under the area's shard lock so live subscribers see
// messages in durable order. Every ingest path funnels through here.
func (c *Coordinator) commit(ctx context.Context, input message.AppendInput) (message.Message, error) {
	s := c.shardFor(input.AreaID)
	s.mu.Lock()
	defer s.mu.Unlock()

	input.CreatedAt = s.tick(input.AreaID, c.now())
	msg, err := c.store.Append(ctx, input)
	if err != nil {
		return message.Message{}, err
	}

	c.hub.Broadcast(input.AreaID, hub.Event{
		Type:    hub.EventMessageCreated,
		AreaID:  input.AreaID,
		Message: &msg,
	})
	return msg, nil
}

// PostDirect ingests a message from an authenticated area member and fans
// it out: durable write, live broadcast, then relay to the linked group if
// one exists.
func (c *Coordinator) PostDirect(ctx context.Context, input DirectInput) (message.Message, error) {
	if err := validateBody(input.Body, input.AttachmentID); err != nil {
		return message.Message{}, err
	}
	if _, err := c.areas.RoleOf(ctx, input.AreaID, input.AuthorID); err != nil {
		return message.Message{}, err
	}
	if input.AttachmentID != "" {
		att, err := c.attachments.Get(ctx, input.AreaID, input.AttachmentID)
		if err != nil {
			return message.Message{}, err
		}
		// Attachments from other areas or other uploaders look absent
		// rather than forbidden; the id space is not probeable.
		if att.UploaderID != input.AuthorID {
			return message.Message{}, attachment.ErrNotFound
		}
	}

	msg, err := c.commit(ctx, message.AppendInput{
		AreaID:       input.AreaID,
		AuthorID:     input.AuthorID,
		Origin:       message.OriginDirect,
		Body:         input.Body,
		AttachmentID: input.AttachmentID,
		ReplyToID:    input.ReplyToID,
	})
	if err != nil {
		return message.Message{}, err
	}
	c.relayOut(ctx, input.AreaID, input.AuthorName, msg)
	return msg, nil
}

// PostRelayed ingests a message that arrived from a linked external group.
// The external timestamp is ignored; ingestion order is timeline order.
// Relayed messages are never echoed back to the platform.
func (c *Coordinator) PostRelayed(ctx context.Context, input RelayedInput) (message.Message, error) {
	if err := validateBody(input.Body, ""); err != nil {
		return message.Message{}, err
	}
	binding, err := c.bindings.ByGroup(ctx, input.GroupID)
	if err != nil {
		return message.Message{}, err
	}

	extAuthor := input.ExternalAuthor
	return c.commit(ctx, message.AppendInput{
		AreaID:         binding.AreaID,
		ExternalAuthor: &extAuthor,
		Origin:         message.OriginRelayed,
		Body:           input.Body,
	})
}

// Edit replaces the body of the caller's own message and broadcasts the
// change. Edits are not relayed to the external group.
func (c *Coordinator) Edit(ctx context.Context, areaID, messageID, authorID, body string) (message.Message, error) {
	if err := validateBody(body, ""); err != nil {
		return message.Message{}, err
	}
	if _, err := c.areas.RoleOf(ctx, areaID, authorID); err != nil {
		return message.Message{}, err
	}

	s := c.shardFor(areaID)
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, err := c.store.MarkEdited(ctx, areaID, messageID, authorID, body, c.now())
	if err != nil {
		return message.Message{}, err
	}
	c.hub.Broadcast(areaID, hub.Event{
		Type:    hub.EventMessageEdited,
		AreaID:  areaID,
		Message: &msg,
	})
	return msg, nil
}

// Delete soft-deletes a message. Moderators may delete anyone's message.
// Deleting an already-deleted message succeeds without a second broadcast.
func (c *Coordinator) Delete(ctx context.Context, areaID, messageID, actorID string) (message.Message, error) {
	role, err := c.areas.RoleOf(ctx, areaID, actorID)
	if err != nil {
		return message.Message{}, err
	}

	s := c.shardFor(areaID)
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := c.store.Get(ctx, areaID, messageID)
	if err != nil {
		return message.Message{}, err
	}
	alreadyDeleted := existing.Deleted()

	msg, err := c.store.MarkDeleted(ctx, areaID, messageID, actorID, role == area.RoleModerator, c.now())
	if err != nil {
		return message.Message{}, err
	}
	if !alreadyDeleted {
		c.hub.Broadcast(areaID, hub.Event{
			Type:    hub.EventMessageDeleted,
			AreaID:  areaID,
			Message: &msg,
		})
	}
	return msg, nil
}

// History pages backwards through an area's timeline. Messages come back
// oldest-first; pass the created_at of the first message of a page as
// before to fetch the previous page.
func (c *Coordinator) History(ctx context.Context, areaID, userID string, before *time.Time, limit int32) ([]message.Message, error) {
	if _, err := c.areas.RoleOf(ctx, areaID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if before != nil {
		return c.store.ListBefore(ctx, areaID, *before, limit)
	}
	return c.store.ListLatest(ctx, areaID, limit)
}

func (c *Coordinator) relayOut(ctx context.Context, areaID, authorName string, msg message.Message) {
	binding, err := c.bindings.ByArea(ctx, areaID)
	if err != nil {
		if !errors.Is(err, linking.ErrNotLinked) {
			c.logger.Error("binding lookup failed",
				"area_id", areaID, "error", err)
		}
		return
	}
	c.relay.Enqueue(bridge.OutboundMessage{
		GroupID:    binding.ExternalGroupID,
		AuthorName: authorName,
		Body:       msg.Body,
	})
}

func validateBody(body, attachmentID string) error {
	if body == "" && attachmentID == "" {
		return ErrEmptyBody
	}
	if len(body) > MaxBodyBytes {
		return fmt.Errorf("%w: %d bytes", ErrBodyTooLong, len(body))
	}
	return nil
}
