package config

import "os"

func defaultEnv(key string) string { return os.Getenv(key) }
