// Package natsink provides a core.Inventory that publishes every entity as
// a JSON event on NATS instead of storing it. Downstream consumers own
// persistence and merge events by their natural key.
package natsink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/exploopio/scanimport/pkg/compress"
	"github.com/exploopio/scanimport/pkg/core"
	ierrors "github.com/exploopio/scanimport/pkg/errors"
	"github.com/exploopio/scanimport/pkg/inventory"
	"github.com/exploopio/scanimport/pkg/shared/fingerprint"
)

// DefaultSubjectPrefix is the subject prefix used when none is configured.
const DefaultSubjectPrefix = "scanimport.inventory"

// Publisher publishes a message. *nats.Conn implements it.
type Publisher interface {
	PublishMsg(msg *nats.Msg) error
}

// Event is the message published for one entity.
type Event struct {
	Entity    fingerprint.Entity `json:"entity"`
	ID        string             `json:"id"`
	Key       string             `json:"key"`
	AssetID   string             `json:"asset_id,omitempty"`
	ParentID  string             `json:"parent_id,omitempty"`
	Spec      json.RawMessage    `json:"spec"`
	Timestamp time.Time          `json:"timestamp"`
}

// Config configures a Sink.
type Config struct {
	// SubjectPrefix is prepended to the entity name.
	// Default: scanimport.inventory
	SubjectPrefix string

	// Compression compresses event payloads (gzip or zstd). The algorithm
	// is sent in the Content-Encoding header. Default: none.
	Compression compress.Algorithm

	// Logger receives publish events. Default: nop.
	Logger core.Logger
}

// Sink is a publishing core.Inventory.
type Sink struct {
	pub        Publisher
	conn       *nats.Conn
	prefix     string
	compressor *compress.Compressor
	logger     core.Logger
	now        func() time.Time
}

// New creates a sink publishing through pub.
func New(pub Publisher, cfg *Config) (*Sink, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	c, err := compress.For(cfg.Compression)
	if err != nil {
		return nil, ierrors.E(ierrors.KindInvalidInput, "natsink.New", "compression", err)
	}
	return &Sink{
		pub:        pub,
		prefix:     prefix,
		compressor: c,
		logger:     core.LoggerOrNop(cfg.Logger),
		now:        time.Now,
	}, nil
}

// Connect dials url and returns a sink that owns the connection.
func Connect(url string, cfg *Config) (*Sink, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	var l core.Logger = &core.NopLogger{}
	if cfg != nil {
		l = core.LoggerOrNop(cfg.Logger)
	}

	nc, err := nats.Connect(url,
		nats.Name("scanimport"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				l.Warn("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			l.Info("nats reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	s, err := New(nc, cfg)
	if err != nil {
		nc.Close()
		return nil, err
	}
	s.conn = nc
	return s, nil
}

// Close drains the owned connection, flushing pending messages.
func (s *Sink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}

// Ping reports whether the owned connection is up. A sink built around a
// caller-supplied publisher is always considered up.
func (s *Sink) Ping(ctx context.Context) error {
	if s.conn == nil {
		return nil
	}
	if !s.conn.IsConnected() {
		return fmt.Errorf("nats connection %s", s.conn.Status())
	}
	return nil
}

// Subject returns the subject events of entity are published on.
func (s *Sink) Subject(entity fingerprint.Entity) string {
	return s.prefix + "." + string(entity)
}

// CreateAsset publishes an asset event.
func (s *Sink) CreateAsset(ctx context.Context, spec core.AssetSpec) (core.AssetRef, error) {
	key := inventory.AssetKey(spec)
	id, err := s.publish(ctx, fingerprint.EntityAsset, key, "", "", spec)
	if err != nil {
		return core.AssetRef{}, err
	}
	return core.AssetRef{ID: id, Key: key}, nil
}

// CreateInterface publishes an interface event.
func (s *Sink) CreateInterface(ctx context.Context, asset core.AssetRef, spec core.InterfaceSpec) (core.InterfaceRef, error) {
	key := inventory.InterfaceKey(asset, spec)
	id, err := s.publish(ctx, fingerprint.EntityInterface, key, asset.ID, "", spec)
	if err != nil {
		return core.InterfaceRef{}, err
	}
	return core.InterfaceRef{ID: id, Key: key}, nil
}

// CreateService publishes a service event. The parent is the interface,
// when there is one.
func (s *Sink) CreateService(ctx context.Context, asset core.AssetRef, iface *core.InterfaceRef, spec core.ServiceSpec) (core.ServiceRef, error) {
	key := inventory.ServiceKey(asset, spec)
	parent := ""
	if iface != nil {
		parent = iface.ID
	}
	id, err := s.publish(ctx, fingerprint.EntityService, key, asset.ID, parent, spec)
	if err != nil {
		return core.ServiceRef{}, err
	}
	return core.ServiceRef{ID: id, Key: key}, nil
}

// CreateFinding publishes a finding event. The parent is the service, when
// there is one.
func (s *Sink) CreateFinding(ctx context.Context, asset core.AssetRef, service *core.ServiceRef, spec core.FindingSpec) (core.FindingRef, error) {
	key := inventory.FindingKey(asset, service, spec)
	parent := ""
	if service != nil {
		parent = service.ID
	}
	id, err := s.publish(ctx, fingerprint.EntityFinding, key, asset.ID, parent, spec)
	if err != nil {
		return core.FindingRef{}, err
	}
	return core.FindingRef{ID: id, Key: key}, nil
}

func (s *Sink) publish(ctx context.Context, entity fingerprint.Entity, key, assetID, parentID string, spec any) (string, error) {
	op := "natsink.publish"
	if err := ctx.Err(); err != nil {
		return "", err
	}

	doc, err := json.Marshal(spec)
	if err != nil {
		return "", ierrors.E(ierrors.KindInternal, op, "encode spec", err)
	}

	event := Event{
		Entity:    entity,
		ID:        fingerprint.Ref(entity, key),
		Key:       key,
		AssetID:   assetID,
		ParentID:  parentID,
		Spec:      doc,
		Timestamp: s.now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return "", ierrors.E(ierrors.KindInternal, op, "encode event", err)
	}

	msg := nats.NewMsg(s.Subject(entity))
	msg.Data, err = s.compressor.Compress(data)
	if err != nil {
		return "", ierrors.E(ierrors.KindInternal, op, "compress event", err)
	}
	if enc := s.compressor.ContentEncoding(); enc != "" {
		msg.Header.Set("Content-Encoding", enc)
	}

	if err := s.pub.PublishMsg(msg); err != nil {
		s.logger.Error("publish %s %s: %v", entity, key, err)
		return "", ierrors.E(ierrors.KindInventory, op, "publish to "+msg.Subject, err)
	}
	s.logger.Debug("published %s %s", entity, key)
	return event.ID, nil
}

// Ensure Sink implements core.Inventory
var _ core.Inventory = (*Sink)(nil)
