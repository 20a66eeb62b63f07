package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sua-org/cam-snap/internal/config"
	"github.com/sua-org/cam-snap/internal/core"
	"github.com/sua-org/cam-snap/internal/logger"
	"github.com/sua-org/cam-snap/internal/mqttclient"
)

func main() {
	_ = config.LoadDotenv()
	log, closer := logger.New(logger.Config{Level: getenv("LOG_LEVEL", "debug")})
	defer closer.Close()

	mc := mqttclient.Config{
		Host:      getenv("MQTT_HOST", "localhost"),
		Port:      1883,
		Username:  os.Getenv("MQTT_USERNAME"),
		Password:  os.Getenv("MQTT_PASSWORD"),
		ClientID:  "cam-snap-debug-subscriber",
		BaseTopic: getenv("MQTT_BASE_TOPIC", "cam-snap"),
	}

	cli, err := mqttclient.NewClient(mc, log)
	if err != nil {
		log.Fatal().Err(err).Msg("could not connect to MQTT")
	}
	defer cli.Close()

	// snapshots de todos os presets + status retido
	base := cli.BaseTopic()
	topics := []string{
		getenv("MQTT_DEBUG_TOPIC", mqttclient.SnapshotTopic(base, "+")),
		mqttclient.StatusTopic(base),
	}
	for _, topic := range topics {
		if err := cli.Subscribe(topic, 1, func(topic string, payload []byte) {
			handleMessage(log, base, topic, payload)
		}); err != nil {
			log.Fatal().Err(err).Str("topic", topic).Msg("subscribe failed")
		}
		log.Info().Str("topic", topic).Msg("subscribed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info().Msg("signal received, stopping subscriber")
	time.Sleep(500 * time.Millisecond)
}

func handleMessage(log zerolog.Logger, base, topic string, payload []byte) {
	switch {
	case topic == mqttclient.StatusTopic(base):
		var st core.BatchStatus
		if err := json.Unmarshal(payload, &st); err != nil {
			log.Warn().Err(err).Str("topic", topic).Str("payload", string(payload)).Msg("invalid status payload")
			return
		}
		log.Info().
			Str("run_id", st.RunID).
			Str("trigger", st.Trigger).
			Strs("succeeded", st.Succeeded).
			Strs("failed", st.Failed).
			Int64("duration_ms", st.DurationMS).
			Uint64("rss_bytes", st.RSSBytes).
			Msg("[STATUS]")

	case strings.HasPrefix(topic, base+"/snapshots/"):
		var evt core.SnapshotEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			log.Warn().Err(err).Str("topic", topic).Str("payload", string(payload)).Msg("invalid snapshot payload")
			return
		}
		log.Info().
			Time("ts", evt.Timestamp).
			Str("camera_ip", evt.CameraIP).
			Str("preset", evt.Preset).
			Str("key", evt.ObjectKey).
			Str("url", evt.SnapshotURL).
			Int("width", evt.Width).
			Int("height", evt.Height).
			Msg("[SNAPSHOT]")

	default:
		log.Debug().Str("topic", topic).Int("bytes", len(payload)).Msg("message")
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
