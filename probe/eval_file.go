package probe

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

func evalFileExistsMsg(spec Spec) string {
	_, err := os.Stat(spec.Path)
	exists := err == nil
	if exists == spec.Exists {
		return ""
	}
	if spec.Exists {
		return fmt.Sprintf("file '%s' does not exist", spec.Path)
	}
	return fmt.Sprintf("file '%s' exists", spec.Path)
}

func evalFileContentMsg(spec Spec) string {
	data, err := os.ReadFile(spec.Path)
	if err != nil {
		return fmt.Sprintf("failed to read '%s': %s", spec.Path, err)
	}
	content := string(data)

	if spec.Contains != nil && !strings.Contains(content, *spec.Contains) {
		return fmt.Sprintf("file '%s' does not contain '%s'", spec.Path, *spec.Contains)
	}

	if spec.Regex != nil {
		re, err := regexp.Compile(*spec.Regex)
		if err != nil {
			return fmt.Sprintf("invalid regex '%s': %s", *spec.Regex, err)
		}
		if !re.MatchString(content) {
			return fmt.Sprintf("file '%s' does not match regex '%s'", spec.Path, *spec.Regex)
		}
	}

	return ""
}
