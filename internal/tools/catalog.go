package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// releasesPerKind bounds how much release history one refresh pulls.
const releasesPerKind = 20

// ghRelease is the subset of GitHub's release document the catalog
// needs.
type ghRelease struct {
	TagName     string    `json:"tag_name"`
	Prerelease  bool      `json:"prerelease"`
	Draft       bool      `json:"draft"`
	PublishedAt time.Time `json:"published_at"`
	Assets      []ghAsset `json:"assets"`
}

type ghAsset struct {
	Name               string `json:"name"`
	Size               int64  `json:"size"`
	BrowserDownloadURL string `json:"browser_download_url"`
	// Digest is "sha256:<hex>" on newer API responses.
	Digest string `json:"digest"`
}

// fetchKind pulls one kind's release list and maps it to descriptors,
// newest first as the API returns them.
func fetchKind(ctx context.Context, client *http.Client, apiBase string, kind Kind, src Source) ([]Descriptor, error) {
	url := fmt.Sprintf("%s/repos/%s/releases?per_page=%d", apiBase, src.Repo, releasesPerKind)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("release listing for %s: HTTP %d", src.Repo, resp.StatusCode)
	}

	var releases []ghRelease
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return nil, fmt.Errorf("release listing for %s: %w", src.Repo, err)
	}

	var descs []Descriptor
	for _, rel := range releases {
		if rel.Prerelease || rel.Draft || rel.TagName == "" {
			continue
		}
		archive, ok := pickAsset(rel.Assets, src.ArchiveSuffix)
		if !ok {
			continue
		}

		d := Descriptor{
			Kind:              kind,
			Version:           rel.TagName,
			ReleaseDate:       rel.PublishedAt,
			DownloadSizeBytes: archive.Size,
			DownloadURL:       archive.BrowserDownloadURL,
			Checksum:          strings.TrimPrefix(archive.Digest, "sha256:"),
		}
		if src.ChecksumSuffix != "" {
			if sum, ok := pickAsset(rel.Assets, src.ChecksumSuffix); ok {
				d.ChecksumURL = sum.BrowserDownloadURL
			}
		}
		descs = append(descs, d)
	}
	return descs, nil
}

// pickAsset finds the first asset whose name ends in suffix.
func pickAsset(assets []ghAsset, suffix string) (ghAsset, bool) {
	for _, a := range assets {
		if strings.HasSuffix(a.Name, suffix) {
			return a, true
		}
	}
	return ghAsset{}, false
}

// catalogCache is the on-disk snapshot of the last successful fetch.
type catalogCache struct {
	FetchedAt   time.Time    `json:"fetched_at"`
	Descriptors []Descriptor `json:"descriptors"`
}

func loadCache(path string) (catalogCache, error) {
	var cache catalogCache
	data, err := os.ReadFile(path)
	if err != nil {
		return cache, err
	}
	if err := json.Unmarshal(data, &cache); err != nil {
		return cache, fmt.Errorf("catalog cache unreadable: %w", err)
	}
	return cache, nil
}

func saveCache(path string, cache catalogCache) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// sortCatalog orders descriptors by kind, then newest release first.
func sortCatalog(descs []Descriptor) {
	sort.SliceStable(descs, func(i, j int) bool {
		if descs[i].Kind != descs[j].Kind {
			return descs[i].Kind < descs[j].Kind
		}
		return descs[i].ReleaseDate.After(descs[j].ReleaseDate)
	})
}
