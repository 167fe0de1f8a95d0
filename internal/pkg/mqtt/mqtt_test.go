package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/anicoll/cloudage-integration/internal/pkg/config"
	"github.com/anicoll/cloudage-integration/internal/pkg/model"
)

func newTestService(t *testing.T) (*service, *MockClient) {
	t.Helper()
	originalLogger := zap.L()
	zap.ReplaceGlobals(zaptest.NewLogger(t))
	t.Cleanup(func() {
		zap.ReplaceGlobals(originalLogger)
	})

	client := newMockClient()
	return newService(client, &config.ProtocolConfig{
		QoS:             1,
		PublishTimeout:  50 * time.Millisecond,
		DiscoveryPrefix: "homeassistant",
		StateTopicRoot:  "cloudage",
	}), client
}

func TestNewOptions(t *testing.T) {
	opts := NewOptions(&config.MqttConfig{
		Host:     "tcp://broker:1883",
		Username: "user",
		Password: "pass",
		ClientID: "cloudage-bridge",
	})
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "broker:1883", opts.Servers[0].Host)
	assert.Equal(t, "cloudage-bridge", opts.ClientID)
	assert.Equal(t, "user", opts.Username)
	assert.True(t, opts.AutoReconnect)
	assert.True(t, opts.Order, "status handlers must run in arrival order")
}

func TestSubscribe_DeliversAndRecoversPanics(t *testing.T) {
	s, client := newTestService(t)

	var got []string
	require.NoError(t, s.Subscribe("CloudAge/dev1/#", func(topic string, payload []byte) {
		if string(payload) == "boom" {
			panic("handler exploded")
		}
		got = append(got, topic+"="+string(payload))
	}))

	client.deliver("CloudAge/dev1/#", "CloudAge/dev1/a", []byte("boom"))
	client.deliver("CloudAge/dev1/#", "CloudAge/dev1/b", []byte("ok"))
	assert.Equal(t, []string{"CloudAge/dev1/b=ok"}, got)
}

func TestSubscribe_FailureIsNotRestored(t *testing.T) {
	s, client := newTestService(t)
	client.SubscribeErr = errors.New("not authorised")

	err := s.Subscribe("CloudAge/dev1", func(string, []byte) {})
	require.Error(t, err)
	assert.Empty(t, s.subscriptions)

	assert.Error(t, s.Subscribe("", func(string, []byte) {}))
}

func TestRestoreSubscriptions(t *testing.T) {
	s, client := newTestService(t)
	require.NoError(t, s.Subscribe("a", func(string, []byte) {}))
	require.NoError(t, s.Subscribe("b", func(string, []byte) {}))
	require.NoError(t, s.Unsubscribe("a"))

	s.restoreSubscriptions()
	assert.Equal(t, 3, client.subscribeCalls)
	assert.Equal(t, []string{"a"}, client.unsubscribed)
	assert.Contains(t, client.handlers, "b")
	assert.NotContains(t, client.handlers, "a")
}

func TestPublish(t *testing.T) {
	tests := map[string]struct {
		setup   func(c *MockClient)
		ctx     func() context.Context
		wantErr error
	}{
		"accepted": {},
		"not connected": {
			setup:   func(c *MockClient) { c.Disconnect(0) },
			wantErr: ErrNotConnected,
		},
		"timeout": {
			setup: func(c *MockClient) {
				c.PublishToken = func(string) *MockToken { return &MockToken{Pending: true} }
			},
			wantErr: ErrTimeout,
		},
		"cancelled": {
			setup: func(c *MockClient) {
				c.PublishToken = func(string) *MockToken { return &MockToken{Pending: true} }
			},
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			wantErr: context.Canceled,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s, client := newTestService(t)
			if tt.setup != nil {
				tt.setup(client)
			}
			ctx := context.Background()
			if tt.ctx != nil {
				ctx = tt.ctx()
			}
			err := s.Publish(ctx, "CloudAge/dev1", []byte(`{}`))
			if tt.wantErr == nil {
				require.NoError(t, err)
				pubs := client.publishes()
				require.Len(t, pubs, 1)
				assert.False(t, pubs[0].retained)
				assert.Equal(t, byte(1), pubs[0].qos)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestRegisterDevice(t *testing.T) {
	s, client := newTestService(t)
	device := model.DeviceView{DeviceID: "dev1", Alias: "Garden", Outputs: make([]bool, 2)}

	require.NoError(t, s.RegisterDevice(context.Background(), device))
	require.NoError(t, s.RegisterDevice(context.Background(), device))

	pubs := client.publishes()
	require.Len(t, pubs, 2)
	assert.Equal(t, "homeassistant/switch/smartcloudage-dev1-output-1/config", pubs[0].topic)
	assert.True(t, pubs[0].retained)

	var msg model.RegisterMessage
	require.NoError(t, json.Unmarshal(pubs[1].payload, &msg))
	assert.Equal(t, "smartcloudage_output::dev1::2", msg.ID)
	assert.Equal(t, "Garden Output 2", msg.Name)
	assert.Equal(t, "cloudage/dev1/2", msg.Tilda)
	assert.Equal(t, "~/set", msg.CommandTopic)
	assert.Equal(t, "~/state", msg.StateTopic)
	assert.Equal(t, "SmartCloudAge Garden", msg.Device.Name)
	assert.Equal(t, "SmartCloudAge", msg.Device.Manufacturer)
	assert.NotContains(t, string(pubs[1].payload), "optimistic", "state topic drives HA, no optimistic mode")
}

func TestRegisterDevice_RetriesAfterFailure(t *testing.T) {
	s, client := newTestService(t)
	client.Disconnect(0)
	device := model.DeviceView{DeviceID: "dev1", Alias: "dev1", Outputs: make([]bool, 1)}

	require.Error(t, s.RegisterDevice(context.Background(), device))
	client.Connect()
	require.NoError(t, s.RegisterDevice(context.Background(), device))
	assert.Len(t, client.publishes(), 1)
}

func TestUnregisterDevice(t *testing.T) {
	s, client := newTestService(t)
	ctx := context.Background()
	require.NoError(t, s.RegisterDevice(ctx, model.DeviceView{DeviceID: "dev1", Alias: "dev1", Outputs: make([]bool, 2)}))
	require.NoError(t, s.RegisterDevice(ctx, model.DeviceView{DeviceID: "dev2", Alias: "dev2", Outputs: make([]bool, 1)}))

	require.NoError(t, s.UnregisterDevice(ctx, "dev1"))

	pubs := client.publishes()[3:]
	require.Len(t, pubs, 4)
	var cleared []string
	for _, p := range pubs {
		assert.Empty(t, p.payload)
		assert.True(t, p.retained)
		cleared = append(cleared, p.topic)
	}
	assert.ElementsMatch(t, []string{
		"homeassistant/switch/smartcloudage-dev1-output-1/config",
		"homeassistant/switch/smartcloudage-dev1-output-2/config",
		"cloudage/dev1/1/state",
		"cloudage/dev1/2/state",
	}, cleared)
	assert.Len(t, s.announced, 1)

	// dev1 is announced again if it comes back.
	require.NoError(t, s.RegisterDevice(ctx, model.DeviceView{DeviceID: "dev1", Alias: "dev1", Outputs: make([]bool, 1)}))
	assert.Len(t, client.publishes(), 8)
}

func TestUnregisterDevice_KeepsFailedEntries(t *testing.T) {
	s, client := newTestService(t)
	ctx := context.Background()
	require.NoError(t, s.RegisterDevice(ctx, model.DeviceView{DeviceID: "dev1", Alias: "dev1", Outputs: make([]bool, 1)}))

	client.Disconnect(0)
	require.ErrorIs(t, s.UnregisterDevice(ctx, "dev1"), ErrNotConnected)
	assert.Len(t, s.announced, 1)

	client.Connect()
	require.NoError(t, s.UnregisterDevice(ctx, "dev1"))
	assert.Empty(t, s.announced)
	require.NoError(t, s.UnregisterDevice(ctx, "unknown"))
}

func TestWrite(t *testing.T) {
	s, client := newTestService(t)
	require.NoError(t, s.Write(context.Background(), model.OutputState{DeviceID: "dev1", Output: 3, IsOn: true}))
	require.NoError(t, s.Write(context.Background(), model.OutputState{DeviceID: "dev1", Output: 3}))

	pubs := client.publishes()
	require.Len(t, pubs, 2)
	assert.Equal(t, "cloudage/dev1/3/state", pubs[0].topic)
	assert.Equal(t, "ON", string(pubs[0].payload))
	assert.Equal(t, "OFF", string(pubs[1].payload))
	assert.True(t, pubs[1].retained)
}

func TestListenCommands(t *testing.T) {
	tests := map[string]struct {
		topic   string
		payload string
		want    []requestCall
	}{
		"on":             {"cloudage/dev1/3/set", "ON", []requestCall{{"dev1", 2, true}}},
		"off lower case": {"cloudage/dev1/1/set", " off\n", []requestCall{{"dev1", 0, false}}},
		"bad payload":    {"cloudage/dev1/1/set", "TOGGLE", nil},
		"bad output":     {"cloudage/dev1/x/set", "ON", nil},
		"zero output":    {"cloudage/dev1/0/set", "ON", nil},
		"wrong root":     {"other/dev1/1/set", "ON", nil},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s, client := newTestService(t)
			r := &MockRequester{}
			require.NoError(t, s.ListenCommands(r))

			client.deliver("cloudage/+/+/set", tt.topic, []byte(tt.payload))
			s.inflight.Wait()
			assert.Equal(t, tt.want, r.calls)
		})
	}
}

func TestListenCommands_RequestErrorIsLogged(t *testing.T) {
	s, client := newTestService(t)
	r := &MockRequester{RequestFunc: func(string, int, bool) error { return errors.New("unknown device") }}
	require.NoError(t, s.ListenCommands(r))

	assert.NotPanics(t, func() {
		client.deliver("cloudage/+/+/set", "cloudage/dev9/1/set", []byte("ON"))
	})
	s.inflight.Wait()
	assert.Len(t, r.calls, 1)
}

func TestListenCommands_DoesNotBlockDelivery(t *testing.T) {
	s, client := newTestService(t)
	release := make(chan struct{})
	r := &MockRequester{RequestFunc: func(string, int, bool) error {
		<-release
		return nil
	}}
	require.NoError(t, s.ListenCommands(r))

	delivered := make(chan struct{})
	go func() {
		client.deliver("cloudage/+/+/set", "cloudage/dev1/1/set", []byte("ON"))
		client.deliver("cloudage/+/+/set", "cloudage/dev1/1/set", []byte("OFF"))
		close(delivered)
	}()

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("command handler blocked the message router")
	}
	close(release)
	s.inflight.Wait()
	assert.Equal(t, []requestCall{{"dev1", 0, true}, {"dev1", 0, false}}, r.calls)
}

func TestListenCommands_KeepsArrivalOrder(t *testing.T) {
	s, client := newTestService(t)
	r := &MockRequester{RequestFunc: func(string, int, bool) error {
		time.Sleep(time.Millisecond)
		return nil
	}}
	require.NoError(t, s.ListenCommands(r))

	var want []requestCall
	for i := 0; i < 50; i++ {
		on := i%2 == 0
		payload := "OFF"
		if on {
			payload = "ON"
		}
		client.deliver("cloudage/+/+/set", "cloudage/dev1/2/set", []byte(payload))
		want = append(want, requestCall{"dev1", 1, on})
	}
	s.inflight.Wait()
	assert.Equal(t, want, r.calls)
}

func TestClose_WaitsForQueuedCommands(t *testing.T) {
	s, client := newTestService(t)
	r := &MockRequester{RequestFunc: func(string, int, bool) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	}}
	require.NoError(t, s.ListenCommands(r))
	client.deliver("cloudage/+/+/set", "cloudage/dev1/1/set", []byte("ON"))

	s.Close()
	assert.Len(t, r.calls, 1)
	assert.False(t, s.IsConnected())
}
