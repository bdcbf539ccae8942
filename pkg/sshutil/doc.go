// Package sshutil forwards TCP connections through an SSH server.
//
// It is used when the device's API port is only reachable from a jump host,
// or when the API should not be exposed beyond the device itself:
//
//	cfg, err := sshutil.LoadConfig("DNSSWITCHER_DEVICE_SSH_")
//	if err != nil {
//		return err
//	}
//	tunnel, err := sshutil.NewTunnel(cfg)
//	if err != nil {
//		return err
//	}
//	defer tunnel.Close()
//
//	client, err := routeros.Dial(ctx, routeros.Config{Address: "127.0.0.1:8728"},
//		routeros.WithDialer(tunnel))
//
// Keys and passwords follow the Docker secrets pattern: KEY_FILE_FILE,
// KEY_DATA_FILE, KEY_PASSPHRASE_FILE and PASSWORD_FILE name files whose
// contents take precedence over the direct variables.
//
// Host keys are not verified unless STRICT_HOST_KEY_CHECKING is true, in which
// case KNOWN_HOSTS_FILE is required.
package sshutil
