package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/agaseke/agaseke-backend/pkg/config"
	"github.com/agaseke/agaseke-backend/pkg/logger"
)

// Role selects which resources a process depends on and Ping verifies.
type Role int

const (
	// RolePublisher needs the purchase topic and, when set, the DLQ topic.
	RolePublisher Role = iota
	// RoleSubscriber needs the analytics subscription.
	RoleSubscriber
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
	role      Role
}

// NewClient connects to Pub/Sub and verifies the resources role depends on.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, role Role, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}

	psClient, err := pubsub.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{client: psClient, projectID: projectID, cfg: cfg, role: role}
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(ctx, "pubsub client initialized")
	}
	return c, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	}
	return nil
}

type resource struct {
	kind string
	name string
}

func requiredResources(role Role, cfg config.PubSubConfig) ([]resource, error) {
	switch role {
	case RolePublisher:
		if strings.TrimSpace(cfg.PurchaseTopic) == "" {
			return nil, errors.New("pubsub purchase topic is required")
		}
		out := []resource{{kind: "topics", name: cfg.PurchaseTopic}}
		if strings.TrimSpace(cfg.PurchaseDLQTopic) != "" {
			out = append(out, resource{kind: "topics", name: cfg.PurchaseDLQTopic})
		}
		return out, nil
	case RoleSubscriber:
		if strings.TrimSpace(cfg.AnalyticsSubscription) == "" {
			return nil, errors.New("pubsub analytics subscription is required")
		}
		return []resource{{kind: "subscriptions", name: cfg.AnalyticsSubscription}}, nil
	}
	return nil, fmt.Errorf("unknown pubsub role %d", role)
}

// Ping verifies every resource the client's role depends on still exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	resources, err := requiredResources(c.role, c.cfg)
	if err != nil {
		return err
	}
	for _, res := range resources {
		full := c.resourceName(res.kind, res.name)
		switch res.kind {
		case "topics":
			_, err = c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: full})
		default:
			_, err = c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: full})
		}
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%s does not exist", full)
		}
		if err != nil {
			return fmt.Errorf("checking %s: %w", full, err)
		}
	}
	return nil
}

// AnalyticsSubscription returns the subscriber feeding settlement rows into BigQuery.
func (c *Client) AnalyticsSubscription() *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	full := c.resourceName("subscriptions", c.cfg.AnalyticsSubscription)
	if full == "" {
		return nil
	}
	return c.client.Subscriber(full)
}

// Publisher returns a publisher handle for a topic ID or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := c.resourceName("topics", name)
	if full == "" {
		return nil
	}
	return c.client.Publisher(full)
}

// Close releases the Pub/Sub client resources.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// resourceName expands a short ID to projects/<project>/<kind>/<id>. Names
// that are already fully qualified pass through.
func (c *Client) resourceName(kind, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/") {
		return n
	}
	if c == nil || c.projectID == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/%s/%s", c.projectID, kind, n)
}
