package malgo

import (
	"encoding/hex"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/voicerec/internal/errors"
)

// AudioDeviceInfo holds information about an audio capture device
type AudioDeviceInfo struct {
	Index     int
	Name      string
	ID        string // decoded device ID, e.g. ":1,0" on ALSA
	IsDefault bool
}

// EnumerateDevices returns the available audio capture devices
func EnumerateDevices() ([]AudioDeviceInfo, error) {
	ctx, err := malgo.InitContext(backendsForPlatform(), malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryAudioSource).
			Context("operation", "init_context").
			Build()
	}
	defer freeContext(ctx)

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_devices").
			Build()
	}

	return describeDevices(infos), nil
}

// SelectDevice finds the capture device matching name. An empty name, "default" or
// "sysdefault" selects the system default.
func SelectDevice(infos []malgo.DeviceInfo, name string) (*malgo.DeviceInfo, error) {
	idx, err := matchDevice(describeDevices(infos), name)
	if err != nil {
		return nil, err
	}
	return &infos[idx], nil
}

func describeDevices(infos []malgo.DeviceInfo) []AudioDeviceInfo {
	devices := make([]AudioDeviceInfo, 0, len(infos))
	for i := range infos {
		decodedID, err := hexToASCII(infos[i].ID.String())
		if err != nil {
			decodedID = infos[i].ID.String()
		}
		devices = append(devices, AudioDeviceInfo{
			Index:     i,
			Name:      infos[i].Name(),
			ID:        strings.TrimRight(decodedID, "\x00"),
			IsDefault: infos[i].IsDefault == 1,
		})
	}
	return devices
}

// matchDevice returns the index of the device matching name: default device, then exact
// name, then decoded ID, then substring of the name. The null device never matches.
func matchDevice(devices []AudioDeviceInfo, name string) (int, error) {
	candidates := make([]AudioDeviceInfo, 0, len(devices))
	for _, d := range devices {
		if strings.Contains(d.Name, "Discard all samples") {
			continue
		}
		candidates = append(candidates, d)
	}

	if name == "" || name == "default" || name == "sysdefault" {
		for _, d := range candidates {
			if d.IsDefault {
				return d.Index, nil
			}
		}
		if len(candidates) > 0 {
			return candidates[0].Index, nil
		}
	}

	for _, d := range candidates {
		if d.Name == name {
			return d.Index, nil
		}
	}
	for _, d := range candidates {
		if d.ID == name {
			return d.Index, nil
		}
	}
	for _, d := range candidates {
		if name != "" && strings.Contains(d.Name, name) {
			return d.Index, nil
		}
	}

	return -1, errors.Newf("no matching audio capture device found").
		Category(errors.CategoryAudioSource).
		Context("device_name", name).
		Context("available_devices", len(candidates)).
		Build()
}

// hexToASCII converts a hexadecimal string to an ASCII string
func hexToASCII(hexStr string) (string, error) {
	bytes, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}
