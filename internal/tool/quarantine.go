package tool

import (
	"os"
	"path/filepath"
)

// Quarantine moves a failed custom-tool file from srcDir to a sibling
// "<srcDir>-quarantine" directory with a ".reason" sidecar file, matching
// the persisted layout of spec §6 ("custom-tools-quarantine/*").
//
// Grounded on the atomic-write idiom of the teacher's pairing store:
// writes go to a temp path and are renamed into place so a reader never
// observes a half-written sidecar.
func Quarantine(srcDir, filename, reason string) error {
	quarantineDir := srcDir + "-quarantine"
	if err := os.MkdirAll(quarantineDir, 0o700); err != nil {
		return err
	}
	srcPath := filepath.Join(srcDir, filename)
	dstPath := filepath.Join(quarantineDir, filename)

	data, err := os.ReadFile(srcPath)
	if err != nil {
		return err
	}
	tmp := dstPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, dstPath); err != nil {
		return err
	}

	reasonPath := dstPath + ".reason"
	reasonTmp := reasonPath + ".tmp"
	if err := os.WriteFile(reasonTmp, []byte(reason), 0o600); err != nil {
		return err
	}
	if err := os.Rename(reasonTmp, reasonPath); err != nil {
		return err
	}
	return os.Remove(srcPath)
}
