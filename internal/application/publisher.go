package application

import (
	"context"

	"tuya-scale/internal/domain"
)

// SnapshotFetcher runs one complete fetch cycle against the vendor cloud.
type SnapshotFetcher interface {
	Fetch(ctx context.Context) (domain.DeviceSnapshot, error)
}

// SnapshotPublisher forwards each new snapshot to a downstream consumer.
type SnapshotPublisher interface {
	Name() string
	Publish(ctx context.Context, deviceID string, snapshot domain.DeviceSnapshot) error
}

// AvailabilityPublisher is implemented by publishers that also track
// whether the held data is current.
type AvailabilityPublisher interface {
	PublishAvailability(ctx context.Context, deviceID string, available bool) error
}
