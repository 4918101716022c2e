package confkit

import (
	"fmt"
	"os"
	"path/filepath"
)

const maxSearchDepth = 8

// ProjectRoot walks up from the working directory to the first directory
// holding go.mod or .git, falling back to the working directory itself.
func ProjectRoot() (string, error) {
	dirs := searchDirs()
	if len(dirs) == 0 {
		wd, err := os.Getwd()
		if err != nil {
			return ".", fmt.Errorf("getwd: %w", err)
		}
		return wd, nil
	}
	return dirs[len(dirs)-1], nil
}

// ProjectPath joins the project root with rel.
func ProjectPath(rel string) (string, error) {
	root, err := ProjectRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, rel), nil
}

// searchDirs lists the working directory and its parents up to and including
// the project root. Without a root marker it returns only the working directory.
func searchDirs() []string {
	wd, err := os.Getwd()
	if err != nil {
		return nil
	}
	var dirs []string
	dir := wd
	for i := 0; i < maxSearchDepth; i++ {
		dirs = append(dirs, dir)
		if fileExists(filepath.Join(dir, "go.mod")) || fileExists(filepath.Join(dir, ".git")) {
			return dirs
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return []string{wd}
}

func fileExists(p string) bool {
	if p == "" {
		return false
	}
	_, err := os.Stat(p)
	return err == nil
}
