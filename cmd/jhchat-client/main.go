// Command jhchat-client is a terminal chat client: list online users, send
// encrypted text, exit. Key exchange and decryption happen transparently
// in the background; this binary only wires stdin to the client runtime.
package main

import (
	"bufio"
	"context"
	"crypto/rsa"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/realzhujunhao/jhchat/internal/client"
	"github.com/realzhujunhao/jhchat/internal/config"
	"github.com/realzhujunhao/jhchat/internal/crypto"
	"github.com/realzhujunhao/jhchat/internal/errs"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := run(log); err != nil {
		log.WithError(err).Error("jhchat-client exiting")
		os.Exit(1)
	}
}

func run(log *logrus.Logger) error {
	exeDir, err := config.ExecutablePath()
	if err != nil {
		return err
	}
	configPath := filepath.Join(exeDir, "config.toml")

	cfg, err := config.Load(configPath, config.DefaultClientConfig(exeDir))
	if err != nil {
		if errs.Is(err, errs.Initialize) {
			log.Info(err.Error())
			return nil
		}
		return err
	}

	enc := crypto.RSA{}
	pub, priv, err := loadOrCreateSelfKeyPair(enc, cfg.Encryption)
	if err != nil {
		return err
	}

	conn, err := net.Dial("tcp", cfg.ServerHost)
	if err != nil {
		return errs.Wrap(errs.SourceClient, errs.CannotEstablishConnection, err)
	}

	c, err := client.Dial(conn, cfg.UID, enc, cfg.Encryption, priv, pub, log)
	if err != nil {
		return err
	}
	defer c.Close()

	go printEvents(c)
	repl(c)
	return nil
}

// loadOrCreateSelfKeyPair reads uid's keypair from SelfKeyDir, generating
// and persisting a fresh one on first run.
func loadOrCreateSelfKeyPair(enc crypto.Encryptor, encryption config.EncryptionConfig) (*rsa.PublicKey, *rsa.PrivateKey, error) {
	if err := os.MkdirAll(encryption.SelfKeyDir, 0o700); err != nil {
		return nil, nil, errs.Wrap(errs.SourceExternal, errs.IO, err)
	}
	pubPath := filepath.Join(encryption.SelfKeyDir, "pub.pem")
	privPath := filepath.Join(encryption.SelfKeyDir, "priv.pem")

	if pub, err := crypto.ReadPublicKey(enc, pubPath); err == nil {
		priv, err := crypto.ReadPrivateKey(enc, privPath)
		if err != nil {
			return nil, nil, err
		}
		return pub, priv, nil
	}

	pub, priv, err := enc.GenerateKeyPair(encryption.KeyLen)
	if err != nil {
		return nil, nil, err
	}
	if err := crypto.PersistPublicKey(enc, pubPath, pub); err != nil {
		return nil, nil, err
	}
	if err := crypto.PersistPrivateKey(enc, privPath, priv); err != nil {
		return nil, nil, err
	}
	return pub, priv, nil
}

func printEvents(c *client.Client) {
	for ev := range c.Events() {
		switch e := ev.(type) {
		case client.TextReceived:
			fmt.Printf("from %s: %s\n", e.From, e.Text)
		case client.OnlineList:
			fmt.Printf("online: %s\n", e.Content)
		case client.Notice:
			fmt.Println(e.Message)
		}
	}
}

func repl(c *client.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		tokens := strings.Fields(scanner.Text())
		if len(tokens) == 0 {
			continue
		}

		switch tokens[0] {
		case "list":
			c.RequestOnlineList()
		case "send":
			if len(tokens) < 3 {
				fmt.Println("usage: send <uid> <text>")
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			err := c.SendText(ctx, tokens[1], strings.Join(tokens[2:], " "))
			cancel()
			if err != nil {
				fmt.Println(err)
			}
		case "exit":
			return
		default:
			fmt.Println("unknown command, expected: list | send <uid> <text> | exit")
		}
	}
}
