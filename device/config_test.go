package device_test

import (
	"testing"
	"time"

	"github.com/hydrolab/ezobridge/device"
	"go.uber.org/mock/gomock"
)

func TestConfig(t *testing.T) {
	t.Run("ErrNoDialer when no dialer provided", func(t *testing.T) {
		_, err := device.NewConfigBuilder().Build()

		if err != device.ErrNoDialer {
			t.Errorf("expected ErrNoDialer, got: %v", err)
		}
	})

	t.Run("Builder accepts full configuration", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		_, err := device.NewConfigBuilder().
			WithDialer(device.NewMockDialer(ctrl)).
			WithQueryTimeout(2 * time.Second).
			WithUnsolicitedBuffer(32).
			Build()

		if err != nil {
			t.Errorf("unexpected error from Build(): %v", err)
		}
	})
}
