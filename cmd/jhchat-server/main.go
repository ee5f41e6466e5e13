// Command jhchat-server runs the relay: load config, bind, accept.
package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/realzhujunhao/jhchat/internal/config"
	"github.com/realzhujunhao/jhchat/internal/errs"
	"github.com/realzhujunhao/jhchat/internal/server"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := run(log); err != nil {
		log.WithError(err).Error("jhchat-server exiting")
		os.Exit(1)
	}
}

func run(log *logrus.Logger) error {
	exeDir, err := config.ExecutablePath()
	if err != nil {
		return err
	}
	configPath := exeDir + string(os.PathSeparator) + "config.toml"

	cfg, err := config.Load(configPath, config.DefaultServerConfig())
	if err != nil {
		if errs.Is(err, errs.Initialize) {
			log.Info(err.Error())
			return nil
		}
		return err
	}

	srv, err := server.Listen(cfg, log)
	if err != nil {
		return err
	}
	defer srv.Close()

	log.WithField("addr", srv.Addr().String()).Info("listening")
	return srv.Serve()
}
