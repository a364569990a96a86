package config

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestGlobalConfig_Devices(t *testing.T) {
	cfg := DefaultGlobalConfig()

	if err := cfg.AddDevice("bench", DeviceConfig{Host: "192.168.1.20"}); err != nil {
		t.Fatalf("AddDevice() error = %v", err)
	}
	if err := cfg.AddDevice("bench", DeviceConfig{Host: "other"}); err == nil {
		t.Error("expected error adding duplicate device")
	}
	if err := cfg.AddDevice("lab", DeviceConfig{Host: "10.0.0.5", User: "root", Port: 2222}); err != nil {
		t.Fatal(err)
	}

	d, err := cfg.GetDevice("bench")
	if err != nil {
		t.Fatal(err)
	}
	if d.User != "pi" || d.Port != 22 || d.Name != "bench" {
		t.Errorf("defaults not applied: %+v", d)
	}

	if got := cfg.ListDevices(); !reflect.DeepEqual(got, []string{"bench", "lab"}) {
		t.Errorf("ListDevices() = %v", got)
	}

	if err := cfg.RemoveDevice("bench"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.RemoveDevice("bench"); err == nil {
		t.Error("expected error removing missing device")
	}
	if _, err := cfg.GetDevice("bench"); err == nil {
		t.Error("expected error for removed device")
	}
}

func TestGlobalConfig_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), GlobalConfigDir, GlobalConfigFile)

	loaded, err := LoadGlobalConfigFrom(path)
	if err != nil {
		t.Fatalf("missing file should load defaults: %v", err)
	}
	if loaded.DefaultUser != "pi" {
		t.Errorf("DefaultUser = %q", loaded.DefaultUser)
	}

	if err := loaded.AddDevice("bench", DeviceConfig{Host: "raspberrypi.local"}); err != nil {
		t.Fatal(err)
	}
	if err := SaveGlobalConfigTo(loaded, path); err != nil {
		t.Fatal(err)
	}

	again, err := LoadGlobalConfigFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	d, err := again.GetDevice("bench")
	if err != nil {
		t.Fatal(err)
	}
	if d.Host != "raspberrypi.local" {
		t.Errorf("Host = %q", d.Host)
	}
}
