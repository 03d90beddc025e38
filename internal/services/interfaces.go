package services

import (
	"context"

	"github.com/deploymenttheory/go-bootstd/internal/bootstd"
)

// StorageService lists storage devices and the bootdevs bound to them
type StorageService interface {
	Storage(ctx context.Context) ([]StorageDevice, error)
	Bootdevs() []BootdevInfo
	Hunters() []HunterInfo
	Hunt(ctx context.Context, uclass string) error
}

// BootflowService scans for bootflows and boots them
type BootflowService interface {
	Bootmeths() []BootmethInfo
	SetEnv(name, value string) error
	Scan(ctx context.Context, opts bootstd.Options) ([]*bootstd.Bootflow, error)
	Boot(ctx context.Context, opts bootstd.Options) (*bootstd.Bootflow, error)
}

// SlotService inspects and updates Android A/B control blocks
type SlotService interface {
	SelectSlot(bootdev string, decTries bool) (string, error)
	SetActive(bootdev, slot string) error
	MarkSuccessful(bootdev, slot string) error
	DumpSlots(bootdev string) (*SlotReport, error)
}

var (
	_ StorageService  = (*BootService)(nil)
	_ BootflowService = (*BootService)(nil)
	_ SlotService     = (*BootService)(nil)
)
