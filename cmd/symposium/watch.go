package main

import (
	"log"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/tinytelemetry/symposium/internal/board"
)

type speedSetter interface {
	SetSpeed(speed float64) error
}

// watchConfig applies board-speed changes from the config file while the
// service runs. Nothing is watched when no config file was loaded.
func watchConfig(v *viper.Viper, configPath string, target speedSetter) {
	if v == nil || configPath == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		applyConfigChange(v, e, target)
	})
	v.WatchConfig()
}

func applyConfigChange(v *viper.Viper, e fsnotify.Event, target speedSetter) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	speed := v.GetFloat64("board-speed")
	if speed <= 0 || speed > board.MaxSpeed {
		log.Printf("config: ignoring invalid board-speed %g from %s", speed, e.Name)
		return
	}
	if err := target.SetSpeed(speed); err != nil {
		log.Printf("config: apply board-speed: %v", err)
		return
	}
	log.Printf("config: board-speed set to %g", speed)
}
