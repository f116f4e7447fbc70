package shared

import "testing"

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Sync.IntervalMinutes != 30 {
			t.Errorf("expected sync interval 30, got %d", config.Sync.IntervalMinutes)
		}

		if config.Proxy.Port != 8080 {
			t.Errorf("expected proxy port 8080, got %d", config.Proxy.Port)
		}

		if config.Proxy.MaxConcurrentStreams != 10 {
			t.Errorf("expected max concurrent streams 10, got %d", config.Proxy.MaxConcurrentStreams)
		}

		if config.Sync.PlaylistPrefix != "YT: " {
			t.Errorf("expected playlist prefix 'YT: ', got %q", config.Sync.PlaylistPrefix)
		}
	})

	t.Run("Validate rejects non-positive sync interval", func(t *testing.T) {
		config := DefaultConfig()
		config.Sync.IntervalMinutes = 0

		if err := config.Validate(); err == nil {
			t.Error("expected error for zero sync interval")
		}
	})

	t.Run("Validate rejects non-positive stream cap", func(t *testing.T) {
		config := DefaultConfig()
		config.Proxy.MaxConcurrentStreams = 0

		if err := config.Validate(); err == nil {
			t.Error("expected error for zero max concurrent streams")
		}
	})
}
