package scsi

import (
	"errors"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
)

var errNoBlockDevice = errors.New("matching block device was not found")

/* Overridden by the tests */
var sysfs = "/sys"

func readVIDPID(file string) (uint16, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return 0, err
	}

	if len(data) < 4 {
		return 0, errors.New("vid/pid entry is too short")
	}

	result, err := strconv.ParseUint(string(data[:4]), 16, 16)
	return uint16(result), err
}

/* The device link of a disk looks like ../../../H:C:T:L */
func hostOfLink(dst string) (int, bool) {
	dst, ok := strings.CutPrefix(dst, "../../../")
	if !ok {
		return 0, false
	}

	hostStr, _, ok := strings.Cut(dst, ":")
	if !ok {
		return 0, false
	}

	host, err := strconv.ParseUint(hostStr, 10, 32)
	if err != nil {
		return 0, false
	}
	return int(host), true
}

func findBlockDeviceForHost(host int) (string, error) {
	blockdev := path.Join(sysfs, "block")

	entries, err := os.ReadDir(blockdev)
	if err != nil {
		return "", err
	}

	for _, m := range entries {
		name := m.Name()

		dst, err := os.Readlink(path.Join(blockdev, name, "device"))
		if err != nil {
			continue
		}

		if h, ok := hostOfLink(dst); ok && h == host {
			return "/dev/" + name, nil
		}
	}

	return "", errNoBlockDevice
}

// FindBlockDevices lists the disks behind USB mass storage interfaces with
// the given vendor and product. A zero id matches anything.
func FindBlockDevices(vid uint16, pid uint16) ([]string, error) {
	scsi := path.Join(sysfs, "bus/scsi/devices")

	entries, err := os.ReadDir(scsi)
	if err != nil {
		return nil, err
	}

	var results []string
	for _, m := range entries {
		name := m.Name()

		hostStr, ok := strings.CutPrefix(name, "host")
		if !ok {
			continue
		}
		dev := scsi + "/" + name

		/* The host sits below the interface, the ids live on the device */
		vendorID, err := readVIDPID(dev + "/../../idVendor")
		if err != nil {
			continue
		}
		productID, _ := readVIDPID(dev + "/../../idProduct")

		if (vid > 0 && vendorID != vid) || (pid > 0 && productID != pid) {
			continue
		}

		host, err := strconv.ParseUint(hostStr, 10, 32)
		if err != nil {
			continue
		}

		if dev, err := findBlockDeviceForHost(int(host)); err == nil {
			results = append(results, dev)
		}
	}

	sort.Strings(results)
	return results, nil
}

func isUsbPath(path string) (uint16, uint16, bool) {
	if len(path) != 9 || path[4] != ':' {
		return 0, 0, false
	}

	vid, err := strconv.ParseUint(path[:4], 16, 16)
	if err != nil {
		return 0, 0, false
	}

	pid, err := strconv.ParseUint(path[5:], 16, 16)
	if err != nil {
		return 0, 0, false
	}

	return uint16(vid), uint16(pid), true
}
