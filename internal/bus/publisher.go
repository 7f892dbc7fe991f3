package bus

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"pioreactor.com/dosing/internal/identity"
)

// PubClient wraps a Transport with the publish-side contract of spec §4.1:
// a retained last-will is registered at construction, so an ungraceful
// disconnect (Crash) leaves `lost` visible to observers.
type PubClient struct {
	identity  identity.Identity
	jobName   string
	transport Transport
}

// NewPubClient registers the $state last-will (payload "lost", QoS
// exactly-once, retained) and returns a ready publisher.
func NewPubClient(id identity.Identity, jobName string, transport Transport) *PubClient {
	p := &PubClient{identity: id, jobName: jobName, transport: transport}
	transport.RegisterLastWill(id.Topic(jobName, "$state"), []byte("lost"), ExactlyOnce)
	return p
}

// Publish sends payload to "pioreactor/<unit>/<experiment>/<job>/<leaf...>".
func (p *PubClient) Publish(ctx context.Context, qos QoS, retain bool, payload []byte, leaf ...string) error {
	return p.transport.Publish(ctx, p.identity.Topic(p.jobName, leaf...), payload, qos, retain)
}

// PublishLog implements log.BusPublisher: Info records go to "…/log",
// Error (and above) records additionally go to "…/error_log".
func (p *PubClient) PublishLog(level logrus.Level, message string) error {
	ctx := context.Background()
	if err := p.Publish(ctx, AtMostOnce, false, []byte(message), "log"); err != nil {
		return err
	}
	if level <= logrus.ErrorLevel {
		return p.Publish(ctx, ExactlyOnce, false, []byte(message), "error_log")
	}
	return nil
}

// PublishRetainedSetting publishes the current value of an editable setting,
// retained, as required whenever an assignment happens (spec §4.4). The
// lifecycle "state" attribute goes to the "$state" leaf, exactly-once — the
// same topic the last-will and SubClient.Reconnect use.
func (p *PubClient) PublishRetainedSetting(attr, value string) error {
	if attr == "state" {
		return p.Publish(context.Background(), ExactlyOnce, true, []byte(value), "$state")
	}
	return p.Publish(context.Background(), AtLeastOnce, true, []byte(value), attr)
}

func (p *PubClient) topic(leaf ...string) string {
	return p.identity.Topic(p.jobName, leaf...)
}

func (p *PubClient) String() string {
	return fmt.Sprintf("pub(%s)", p.topic())
}
