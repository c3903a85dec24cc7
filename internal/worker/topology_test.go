package worker

import (
	"testing"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenil3357/Dead-Letter-Exchange-RabbitMq/pkg/config"
	"github.com/fenil3357/Dead-Letter-Exchange-RabbitMq/pkg/rabbit"
)

func defaultTopologyConfig(t *testing.T) config.TopologyConfig {
	t.Helper()
	var c config.TopologyConfig
	require.NoError(t, env.Parse(&c))
	return c
}

func TestBuildTopologyIsRoutable(t *testing.T) {
	top := BuildTopology(defaultTopologyConfig(t))
	require.NoError(t, top.Validate())
}

func TestBuildTopologyDeadLetterTargets(t *testing.T) {
	c := defaultTopologyConfig(t)
	top := BuildTopology(c)

	targets := map[string][]string{}
	for _, q := range top.Queues {
		if q.DeadLetterExchange == "" {
			continue
		}
		for _, key := range top.DeadLetterKeys(q) {
			targets[q.Name] = append(targets[q.Name], top.Resolve(q.DeadLetterExchange, key)...)
		}
	}

	// Expired or rejected main-queue messages land in the dead-letter queue.
	assert.Equal(t, []string{c.DLXQueue}, targets[c.MainQueue])
	// The passive retry path lands back in the main queue.
	assert.Equal(t, []string{c.MainQueue}, targets[c.RetryQueue])
	// The dead-letter queue is terminal.
	_, has := targets[c.DLXQueue]
	assert.False(t, has)
}

func TestBuildTopologyPublishRoutes(t *testing.T) {
	c := defaultTopologyConfig(t)
	top := BuildTopology(c)

	assert.Equal(t, []string{c.MainQueue}, top.Resolve(c.MainExchange, c.MainRoutingKey))
	assert.Equal(t, []string{c.RetryQueue}, top.Resolve(c.RetryExchange, c.RetryRoutingKey))
	assert.Equal(t, []string{c.DLXQueue}, top.Resolve(c.DLXExchange, c.DLXRoutingKey))
}

func TestBuildTopologyArgs(t *testing.T) {
	c := defaultTopologyConfig(t)
	top := BuildTopology(c)

	byName := map[string]rabbit.Queue{}
	for _, q := range top.Queues {
		byName[q.Name] = q
	}

	main := byName[c.MainQueue].Args()
	assert.Equal(t, int32(30000), main["x-message-ttl"])
	assert.Equal(t, c.DLXExchange, main["x-dead-letter-exchange"])
	assert.Equal(t, c.DLXRoutingKey, main["x-dead-letter-routing-key"])

	retry := byName[c.RetryQueue].Args()
	assert.Equal(t, int32(5000), retry["x-message-ttl"])
	assert.Equal(t, c.MainExchange, retry["x-dead-letter-exchange"])
	assert.Equal(t, c.MainRoutingKey, retry["x-dead-letter-routing-key"])

	assert.Nil(t, byName[c.DLXQueue].Args())
}

func TestBuildTopologyCustomNamesStayRoutable(t *testing.T) {
	c := defaultTopologyConfig(t)
	c.MainRoutingKey = "orders.v2"
	c.DLXRoutingKey = "graveyard"
	require.NoError(t, BuildTopology(c).Validate())
}
