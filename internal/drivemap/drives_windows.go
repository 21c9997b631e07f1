//go:build windows

package drivemap

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
	"github.com/shirou/gopsutil/v3/disk"
	"golang.org/x/sys/windows/registry"

	"github.com/fleetline/agent/internal/logging"
)

// windowsBackend drives the real OS surface: WScript.Network COM for the
// mappings, Shell.Application for labels, the HKCU\Network hive for the
// reconnect flags.
type windowsBackend struct{}

// NewBackend returns the drive backend for this platform.
func NewBackend() Backend {
	return &windowsBackend{}
}

// withNetwork runs action against a WScript.Network dispatch on a locked OS
// thread with apartment-threaded COM.
func (b *windowsBackend) withNetwork(action func(network *ole.IDispatch) error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		return fmt.Errorf("failed to initialize COM: %w", err)
	}
	defer ole.CoUninitialize()

	unknown, err := oleutil.CreateObject("WScript.Network")
	if err != nil {
		return fmt.Errorf("failed to create network object: %w", err)
	}
	defer unknown.Release()

	network, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return fmt.Errorf("failed to query network object: %w", err)
	}
	defer network.Release()

	return action(network)
}

// CurrentDrives merges the partition view (all mounted letters) with the
// network-drive enumeration (letter → UNC remote), excluding the system
// drive.
func (b *windowsBackend) CurrentDrives() ([]DriveState, error) {
	remotes, err := b.networkRemotes()
	if err != nil {
		return nil, err
	}

	partitions, err := disk.Partitions(false)
	if err != nil {
		return nil, fmt.Errorf("enumerate partitions: %w", err)
	}

	systemLetter := strings.ToUpper(strings.TrimSuffix(os.Getenv("SystemDrive"), ":"))
	if systemLetter == "" {
		systemLetter = "C"
	}

	var drives []DriveState
	seen := make(map[string]bool)
	for _, p := range partitions {
		letter := strings.ToUpper(strings.TrimSuffix(p.Mountpoint, `:\`))
		letter = strings.TrimSuffix(letter, ":")
		if len(letter) != 1 || letter == systemLetter {
			continue
		}
		seen[letter] = true
		if remote, ok := remotes[letter]; ok {
			drives = append(drives, DriveState{Letter: letter, Path: remote, Network: true})
		} else {
			drives = append(drives, DriveState{Letter: letter, Network: false})
		}
	}

	// Disconnected network drives keep their letter reserved but do not
	// show up as partitions.
	for letter, remote := range remotes {
		if !seen[letter] && letter != systemLetter {
			drives = append(drives, DriveState{Letter: letter, Path: remote, Network: true})
		}
	}
	return drives, nil
}

// networkRemotes returns the letter → UNC map from EnumNetworkDrives, which
// yields a flat collection alternating drive letter and remote path.
func (b *windowsBackend) networkRemotes() (map[string]string, error) {
	remotes := make(map[string]string)
	err := b.withNetwork(func(network *ole.IDispatch) error {
		enumVar, err := oleutil.CallMethod(network, "EnumNetworkDrives")
		if err != nil {
			return fmt.Errorf("enumerate network drives: %w", err)
		}
		defer enumVar.Clear()

		drives := enumVar.ToIDispatch()
		if drives == nil {
			return fmt.Errorf("enumerate network drives: missing collection")
		}
		defer drives.Release()

		countVar, err := oleutil.GetProperty(drives, "Count")
		if err != nil {
			return fmt.Errorf("read drive collection count: %w", err)
		}
		count := int(countVar.Val)
		countVar.Clear()

		for i := 0; i+1 < count; i += 2 {
			letterVar, err := oleutil.CallMethod(drives, "Item", i)
			if err != nil {
				return err
			}
			remoteVar, err := oleutil.CallMethod(drives, "Item", i+1)
			if err != nil {
				letterVar.Clear()
				return err
			}
			letter := strings.ToUpper(strings.TrimSuffix(letterVar.ToString(), ":"))
			remotes[letter] = remoteVar.ToString()
			letterVar.Clear()
			remoteVar.Clear()
		}
		return nil
	})
	return remotes, err
}

// Create maps the drive with persistence enabled and sets its display label.
// A failure is classified as PathUnreachableError when the share itself does
// not answer.
func (b *windowsBackend) Create(m Mapping) error {
	err := b.withNetwork(func(network *ole.IDispatch) error {
		mapVar, err := oleutil.CallMethod(network, "MapNetworkDrive", m.DriveLetter+":", m.Path, true)
		if err != nil {
			return err
		}
		mapVar.Clear()
		return nil
	})
	if err != nil {
		if _, statErr := os.Stat(m.Path); statErr != nil {
			return &PathUnreachableError{Path: m.Path}
		}
		return err
	}

	if m.Label != "" {
		if err := b.setLabel(m.DriveLetter, m.Label); err != nil {
			// The drive exists; a label failure is not worth undoing it.
			log.Warn("setting drive label failed",
				logging.KeyDrive, m.DriveLetter, "label", m.Label, logging.KeyError, err)
		}
	}
	return nil
}

// setLabel renames the drive in Explorer via the Shell namespace.
func (b *windowsBackend) setLabel(letter, label string) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		return fmt.Errorf("failed to initialize COM: %w", err)
	}
	defer ole.CoUninitialize()

	unknown, err := oleutil.CreateObject("Shell.Application")
	if err != nil {
		return fmt.Errorf("failed to create shell object: %w", err)
	}
	defer unknown.Release()

	shell, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return fmt.Errorf("failed to query shell object: %w", err)
	}
	defer shell.Release()

	nsVar, err := oleutil.CallMethod(shell, "NameSpace", letter+":")
	if err != nil {
		return err
	}
	defer nsVar.Clear()

	ns := nsVar.ToIDispatch()
	if ns == nil {
		return fmt.Errorf("shell namespace for %s: not found", letter)
	}
	defer ns.Release()

	selfVar, err := oleutil.GetProperty(ns, "Self")
	if err != nil {
		return err
	}
	defer selfVar.Clear()

	self := selfVar.ToIDispatch()
	if self == nil {
		return fmt.Errorf("shell namespace for %s: missing folder item", letter)
	}
	defer self.Release()

	if _, err := oleutil.PutProperty(self, "Name", label); err != nil {
		return err
	}
	return nil
}

// Remove disconnects the drive, forcing the disconnect and updating the
// user profile so it does not come back at next logon.
func (b *windowsBackend) Remove(letter string) error {
	return b.withNetwork(func(network *ole.IDispatch) error {
		removeVar, err := oleutil.CallMethod(network, "RemoveNetworkDrive", letter+":", true, true)
		if err != nil {
			return err
		}
		removeVar.Clear()
		return nil
	})
}

// MarkPersistent walks HKCU\Network and flags every mapped drive to restore
// its connection at logon.
func (b *windowsBackend) MarkPersistent() error {
	root, err := registry.OpenKey(registry.CURRENT_USER, `Network`, registry.READ)
	if err != nil {
		if err == registry.ErrNotExist {
			return nil
		}
		return fmt.Errorf("open HKCU\\Network: %w", err)
	}
	defer root.Close()

	letters, err := root.ReadSubKeyNames(-1)
	if err != nil {
		return fmt.Errorf("list HKCU\\Network: %w", err)
	}

	for _, letter := range letters {
		key, err := registry.OpenKey(registry.CURRENT_USER, `Network\`+letter, registry.SET_VALUE)
		if err != nil {
			log.Warn("opening drive registry key failed",
				logging.KeyDrive, letter, logging.KeyError, err)
			continue
		}
		if err := key.SetDWordValue("ConnectionType", 1); err != nil {
			log.Warn("setting ConnectionType failed",
				logging.KeyDrive, letter, logging.KeyError, err)
		}
		if err := key.SetDWordValue("DeferFlags", 4); err != nil {
			log.Warn("setting DeferFlags failed",
				logging.KeyDrive, letter, logging.KeyError, err)
		}
		key.Close()
	}
	return nil
}
