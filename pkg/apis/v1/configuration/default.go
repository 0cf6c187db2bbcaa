package configuration

import "time"

func Default() *Configuration {
	return &Configuration{
		Auth: map[RegistryName]RegistryConfiguration{
			"docker.io": {
				Name:  "docker.io",
				Basic: nil,
			},
		},
		Worker: WorkerConfiguration{
			Parallel: 4,
			Timeout:  30 * time.Minute,
		},
	}
}
