package main

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Profile holds the saved login and server for this machine.
type Profile struct {
	Server    string `toml:"server"`
	SessionID string `toml:"session_id,omitempty"`
	Username  string `toml:"username,omitempty"`
}

func profilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".config", "sashay")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "profile.toml"), nil
}

func loadProfile() (Profile, error) {
	path, err := profilePath()
	if err != nil {
		return Profile{}, err
	}
	var p Profile
	if _, err := toml.DecodeFile(path, &p); err != nil {
		if os.IsNotExist(err) {
			return Profile{}, nil
		}
		return Profile{}, err
	}
	return p, nil
}

func saveProfile(p Profile) error {
	path, err := profilePath()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(p)
}

// mirrorPath is where the on-disk mirror for the current server lives.
func mirrorPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "sashay", "mirror"), nil
}
