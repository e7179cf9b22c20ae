package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.uber.org/multierr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/pokecard-storefront/pkg/config"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopics          = errors.New("pubsub topic name is required")
)

// Message is one record bound for a topic. Messages sharing an OrderingKey
// are delivered in publish order.
type Message struct {
	Topic       string
	OrderingKey string
	Data        []byte
	Attributes  map[string]string
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
	Stop()
}

type topicChecker func(ctx context.Context, fullName string) error

// Client publishes outbox records to Pub/Sub topics, one publisher per topic.
type Client struct {
	client    *gcppubsub.Client
	projectID string
	topics    []string
	newPub    func(fullName string) publisher
	checkFn   topicChecker

	mu         sync.Mutex
	publishers map[string]publisher
}

// NewClient creates a Pub/Sub v2 client and ensures every topic exists.
func NewClient(ctx context.Context, gcp config.GCPConfig, topics []string, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}

	psClient, err := gcppubsub.NewClient(ctx, gcp.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := newClient(gcp.ProjectID, topics,
		func(fullName string) publisher {
			pub := psClient.Publisher(fullName)
			pub.EnableMessageOrdering = true
			return &gcpPublisher{Publisher: pub}
		},
		func(ctx context.Context, fullName string) error {
			_, err := psClient.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: fullName})
			return err
		},
	)
	c.client = psClient

	if err := c.ensureTopics(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "pubsub_topics", strings.Join(c.topics, ",")), "pubsub client initialized")
	}
	return c, nil
}

func newClient(projectID string, topics []string, newPub func(string) publisher, check topicChecker) *Client {
	names := make([]string, 0, len(topics))
	for _, topic := range topics {
		if trimmed := strings.TrimSpace(topic); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return &Client{
		projectID:  projectID,
		topics:     names,
		newPub:     newPub,
		checkFn:    check,
		publishers: make(map[string]publisher),
	}
}

func (c *Client) ensureTopics(ctx context.Context) error {
	if len(c.topics) == 0 {
		return errNoTopics
	}
	for _, name := range c.topics {
		if err := c.checkFn(ctx, c.topicResourceName(name)); err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("topic %q does not exist", name)
			}
			return fmt.Errorf("checking topic %q: %w", name, err)
		}
	}
	return nil
}

// Publish sends every message and waits for the server to ack each one.
// A failed message resumes its ordering key so later batches can proceed.
func (c *Client) Publish(ctx context.Context, msgs ...Message) error {
	if c == nil || c.newPub == nil {
		return errors.New("pubsub client not initialized")
	}
	type pending struct {
		pub    publisher
		key    string
		result publishResult
	}
	waiting := make([]pending, 0, len(msgs))
	for _, msg := range msgs {
		fullName := c.topicResourceName(msg.Topic)
		if fullName == "" {
			return errors.New("pubsub topic is required")
		}
		pub := c.publisher(fullName)
		result := pub.Publish(ctx, &gcppubsub.Message{
			Data:        msg.Data,
			Attributes:  msg.Attributes,
			OrderingKey: msg.OrderingKey,
		})
		waiting = append(waiting, pending{pub: pub, key: msg.OrderingKey, result: result})
	}

	var errs error
	for _, p := range waiting {
		if _, err := p.result.Get(ctx); err != nil {
			if p.key != "" {
				p.pub.ResumePublish(p.key)
			}
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (c *Client) publisher(fullName string) publisher {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pub, ok := c.publishers[fullName]; ok {
		return pub
	}
	pub := c.newPub(fullName)
	c.publishers[fullName] = pub
	return pub
}

// Ping verifies Pub/Sub connectivity by checking configured topics exist.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return errors.New("pubsub client not initialized")
	}
	return c.ensureTopics(ctx)
}

// Close flushes the publishers and releases the client.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	for name, pub := range c.publishers {
		pub.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) topicResourceName(name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/") {
		return n
	}
	p := strings.TrimSpace(c.projectID)
	if p == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/topics/%s", p, n)
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}
