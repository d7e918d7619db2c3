package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// DotEnvFile is read from the working directory.
const DotEnvFile = ".env"

// LoadDotEnv reads ./.env and returns key/value pairs.
//
// Parsing rules:
// - Lines starting with '#' are ignored.
// - Empty lines are ignored.
// - Lines must be of form KEY=VALUE.
// - Whitespace around KEY is trimmed.
// - VALUE is taken as-is (no quote parsing).
func LoadDotEnv() (map[string]string, error) {
	f, err := os.Open(DotEnvFile)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("cannot open dotenv file %s: %w", DotEnvFile, err)
	}
	defer f.Close()

	out := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		i := strings.Index(line, "=")
		if i <= 0 {
			continue
		}
		k := strings.TrimSpace(line[:i])
		v := line[i+1:]
		if k == "" {
			continue
		}
		out[k] = v
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read dotenv file %s: %w", DotEnvFile, err)
	}
	return out, nil
}

// GetConfigValue returns the effective value for key, using process
// environment variables first and falling back to ./.env.
func GetConfigValue(key string) (string, error) {
	if v := os.Getenv(key); v != "" {
		return v, nil
	}
	dotenv, err := LoadDotEnv()
	if err != nil {
		return "", err
	}
	return dotenv[key], nil
}

// EnsureDotEnvTemplate creates ./.env if it does not already exist. The
// template lists the redis keys with empty values so the cache can be
// enabled without editing catsdogs.yaml.
func EnsureDotEnvTemplate() (bool, error) {
	if _, err := os.Stat(DotEnvFile); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("cannot stat dotenv file %s: %w", DotEnvFile, err)
	}

	body := "" +
		EnvName("redis.addr") + "=\n" +
		EnvName("redis.password") + "=\n" +
		"GIT_SHA=\n"

	if err := os.WriteFile(DotEnvFile, []byte(body), 0o600); err != nil {
		return false, fmt.Errorf("cannot write dotenv template %s: %w", DotEnvFile, err)
	}
	return true, nil
}
