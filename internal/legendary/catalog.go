package legendary

import (
	"encoding/json"
	"fmt"
)

// GameInfo is one entry of the tool's owned-games listing.
type GameInfo struct {
	AppName  string `json:"app_name"`
	AppTitle string `json:"app_title"`
}

// ParseGameList decodes the output of "legendary list --json".
func ParseGameList(data []byte) ([]GameInfo, error) {
	var games []GameInfo
	if err := json.Unmarshal(data, &games); err != nil {
		return nil, fmt.Errorf("parse game list: %w", err)
	}
	return games, nil
}

// InstallInfo carries the fields from "legendary info --json" that drive
// progress estimation and record updates. InstallPath is only present when
// the game is already installed.
type InstallInfo struct {
	Title        string
	Version      string
	Platform     string
	DownloadSize int64
	DiskSize     int64
	InstallPath  string
}

// infoPayload mirrors only the parts of the info document we consume.
type infoPayload struct {
	Game struct {
		Title   string `json:"title"`
		Version string `json:"version"`
	} `json:"game"`
	Manifest struct {
		DownloadSize int64 `json:"download_size"`
		DiskSize     int64 `json:"disk_size"`
	} `json:"manifest"`
	Install struct {
		Path     string `json:"install_path"`
		Platform string `json:"platform"`
	} `json:"install"`
}

// ParseInfo decodes the output of "legendary info <app> --json".
func ParseInfo(data []byte) (InstallInfo, error) {
	var payload infoPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return InstallInfo{}, fmt.Errorf("parse install info: %w", err)
	}
	return InstallInfo{
		Title:        payload.Game.Title,
		Version:      payload.Game.Version,
		Platform:     payload.Install.Platform,
		DownloadSize: payload.Manifest.DownloadSize,
		DiskSize:     payload.Manifest.DiskSize,
		InstallPath:  payload.Install.Path,
	}, nil
}

// ToolStatus carries the auth snapshot from "legendary status --json".
type ToolStatus struct {
	Account        string `json:"account"`
	GamesOwned     int    `json:"games_available"`
	GamesInstalled int    `json:"games_installed"`
}

// ParseStatus decodes the output of "legendary status --json". An
// unauthenticated tool reports account "<not logged in>".
func ParseStatus(data []byte) (ToolStatus, error) {
	var status ToolStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return ToolStatus{}, fmt.Errorf("parse tool status: %w", err)
	}
	return status, nil
}

// LoggedIn reports whether the tool has a usable session.
func (s ToolStatus) LoggedIn() bool {
	return s.Account != "" && s.Account != "<not logged in>"
}
