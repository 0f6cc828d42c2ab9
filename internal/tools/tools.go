package tools

import (
	"fmt"
	"time"
)

// Kind identifies a runner-tool family.
type Kind string

const (
	KindWine   Kind = "wine"
	KindProton Kind = "proton"
	KindDXVK   Kind = "dxvk"
)

// Kinds returns all supported tool kinds in a stable order.
func Kinds() []Kind {
	return []Kind{KindWine, KindProton, KindDXVK}
}

// ParseKind validates a kind string from the CLI or HTTP surface.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindWine, KindProton, KindDXVK:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown tool kind %q", s)
}

// Descriptor describes one published tool version. Release fields are
// immutable once fetched; IsInstalled, HasUpdate and InstalledSizeBytes
// are recomputed from on-disk state on every catalog refresh.
type Descriptor struct {
	Kind        Kind      `json:"kind"`
	Version     string    `json:"version"`
	ReleaseDate time.Time `json:"release_date"`

	DownloadSizeBytes int64  `json:"download_size_bytes"`
	DownloadURL       string `json:"download_url"`
	// Checksum is "<hex>" as published by the release, when the API
	// carries a digest directly. ChecksumURL points at the sidecar
	// checksum asset otherwise; empty means the release publishes none.
	Checksum    string `json:"checksum,omitempty"`
	ChecksumURL string `json:"checksum_url,omitempty"`

	InstallDir         string `json:"install_dir,omitempty"`
	InstalledSizeBytes int64  `json:"installed_size_bytes,omitempty"`
	IsInstalled        bool   `json:"is_installed"`
	HasUpdate          bool   `json:"has_update"`
}

// Key returns the entity key for this version, used for events, abort
// handles and capture logs.
func (d Descriptor) Key() string {
	return fmt.Sprintf("%s-%s", d.Kind, d.Version)
}

// Source names where a kind's releases come from and how to recognize
// its assets.
type Source struct {
	// Repo is the GitHub "owner/name" whose releases carry the builds.
	Repo string
	// ArchiveSuffix selects the release asset holding the build.
	ArchiveSuffix string
	// ChecksumSuffix selects the sidecar checksum asset, if published.
	ChecksumSuffix string
}

// DefaultSources returns the upstream release feeds per kind.
func DefaultSources() map[Kind]Source {
	return map[Kind]Source{
		KindWine: {
			Repo:           "GloriousEggroll/wine-ge-custom",
			ArchiveSuffix:  ".tar.xz",
			ChecksumSuffix: ".sha512sum",
		},
		KindProton: {
			Repo:           "GloriousEggroll/proton-ge-custom",
			ArchiveSuffix:  ".tar.gz",
			ChecksumSuffix: ".sha512sum",
		},
		KindDXVK: {
			Repo:          "doitsujin/dxvk",
			ArchiveSuffix: ".tar.gz",
		},
	}
}
