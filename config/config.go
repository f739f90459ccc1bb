// Package config loads the settings of a security manager from a YAML file
// and SMP_* environment variables, the environment taking precedence.
package config

import (
	"encoding/hex"
	"io/ioutil"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	ble "github.com/rigado/blesmp"
	"github.com/rigado/blesmp/linux/hci/bond"
	"github.com/rigado/blesmp/linux/hci/smp"
	"gopkg.in/yaml.v3"
)

const envPrefix = "SMP"

// Store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

type Config struct {
	LogLevel string `yaml:"logLevel" envconfig:"LOG_LEVEL"`

	// pairing params
	IOCap      string `yaml:"ioCap" envconfig:"IO_CAP"`
	Bonding    bool   `yaml:"bonding" envconfig:"BONDING"`
	MITM       bool   `yaml:"mitm" envconfig:"MITM"`
	MaxKeySize int    `yaml:"maxKeySize" envconfig:"MAX_KEY_SIZE"`
	MinKeySize int    `yaml:"minKeySize" envconfig:"MIN_KEY_SIZE"`
	InitKeys   string `yaml:"initKeys" envconfig:"INIT_KEYS"`
	RespKeys   string `yaml:"respKeys" envconfig:"RESP_KEYS"`

	// out of band TK shared with the peer, 32 hex digits LSB first. Setting
	// it raises the OOB data flag.
	OOBData string `yaml:"oobData" envconfig:"OOB_DATA"`

	ResponseTimeout time.Duration `yaml:"responseTimeout" envconfig:"RESPONSE_TIMEOUT"`
	ReleaseDelay    time.Duration `yaml:"releaseDelay" envconfig:"RELEASE_DELAY"`

	// device roots, 32 hex digits LSB first
	EncryptionRoot string `yaml:"er" envconfig:"ER"`
	IdentityRoot   string `yaml:"ir" envconfig:"IR"`

	// 0 runs crypto on the calling goroutine
	CryptoWorkers int `yaml:"cryptoWorkers" envconfig:"CRYPTO_WORKERS"`

	Store       string `yaml:"store" envconfig:"STORE"`
	BondFile    string `yaml:"bondFile" envconfig:"BOND_FILE"`
	RedisAddr   string `yaml:"redisAddr" envconfig:"REDIS_ADDR"`
	RedisPrefix string `yaml:"redisPrefix" envconfig:"REDIS_PREFIX"`
}

// Default returns the settings used for anything not configured.
func Default() *Config {
	return &Config{
		LogLevel:        "info",
		IOCap:           smp.IOCapNoInputNoOutput.String(),
		Bonding:         true,
		MaxKeySize:      smp.MaxEncKeySize,
		MinKeySize:      smp.MinEncKeySize,
		InitKeys:        "enc,id",
		RespKeys:        "enc,id",
		ResponseTimeout: smp.DefaultResponseTimeout,
		ReleaseDelay:    smp.DefaultReleaseDelay,
		Store:           StoreMemory,
		BondFile:        "bonds.json",
		RedisPrefix:     bond.DefaultKeyPrefix,
	}
}

// Load reads the file at path, if any, then applies the environment.
func Load(path string) (*Config, error) {
	c := Default()

	if path != "" {
		in, err := ioutil.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "can't read config")
		}
		if err := yaml.Unmarshal(in, c); err != nil {
			return nil, errors.Wrapf(err, "can't parse %v", path)
		}
	}

	if err := envconfig.Process(envPrefix, c); err != nil {
		return nil, errors.Wrap(err, "can't load environment")
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if _, err := c.LocalParams(); err != nil {
		return err
	}
	if c.MinKeySize < smp.MinEncKeySize || c.MinKeySize > c.MaxKeySize {
		return errors.Errorf("invalid min key size %d", c.MinKeySize)
	}
	if c.ResponseTimeout <= 0 || c.ReleaseDelay < 0 {
		return errors.Errorf("invalid timers %v/%v", c.ResponseTimeout, c.ReleaseDelay)
	}
	if _, _, _, err := c.roots(); err != nil {
		return err
	}
	switch c.Store {
	case StoreMemory, StoreFile:
	case StoreRedis:
		if c.RedisAddr == "" {
			return errors.New("redis store needs redisAddr")
		}
	default:
		return errors.Errorf("unknown store %q", c.Store)
	}
	return nil
}

// ParseKeyDist parses a list like "enc,id,sign".
func ParseKeyDist(s string) (smp.KeyDist, error) {
	var k smp.KeyDist
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '|' || r == ' ' }) {
		switch strings.ToLower(f) {
		case "enc":
			k |= smp.KeyDistEnc
		case "id":
			k |= smp.KeyDistId
		case "sign":
			k |= smp.KeyDistSign
		case "none":
		default:
			return 0, errors.Errorf("unknown key %q", f)
		}
	}
	return k, nil
}

// LocalParams returns the pairing params of the device.
func (c *Config) LocalParams() (smp.PairingParams, error) {
	var p smp.PairingParams

	io, ok := smp.ParseIOCapability(c.IOCap)
	if !ok {
		return p, errors.Errorf("unknown io capability %q", c.IOCap)
	}
	if c.MaxKeySize < smp.MinEncKeySize || c.MaxKeySize > smp.MaxEncKeySize {
		return p, errors.Errorf("invalid max key size %d", c.MaxKeySize)
	}
	initKeys, err := ParseKeyDist(c.InitKeys)
	if err != nil {
		return p, errors.Wrap(err, "initKeys")
	}
	resp, err := ParseKeyDist(c.RespKeys)
	if err != nil {
		return p, errors.Wrap(err, "respKeys")
	}

	p = smp.PairingParams{
		IOCap:       io,
		MaxKeySize:  uint8(c.MaxKeySize),
		InitKeyDist: initKeys,
		RespKeyDist: resp,
	}
	if c.Bonding {
		p.AuthReq |= smp.AuthReqBond
	}
	if c.MITM {
		p.AuthReq |= smp.AuthReqMITM
	}
	if c.OOBData != "" {
		if _, err := parseRoot("oobData", c.OOBData); err != nil {
			return p, err
		}
		p.OOBFlag = smp.OOBDataPresent
	}
	return p, nil
}

func parseRoot(name, s string) ([16]byte, error) {
	var out [16]byte
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 16 {
		return out, errors.Errorf("%v must be 32 hex digits", name)
	}
	copy(out[:], b)
	return out, nil
}

// OOB returns the out of band TK, nil when none is configured.
func (c *Config) OOB() ([]byte, error) {
	if c.OOBData == "" {
		return nil, nil
	}
	k, err := parseRoot("oobData", c.OOBData)
	if err != nil {
		return nil, err
	}
	return k[:], nil
}

func (c *Config) roots() (er, ir [16]byte, ok bool, err error) {
	if c.EncryptionRoot == "" && c.IdentityRoot == "" {
		return er, ir, false, nil
	}
	if er, err = parseRoot("er", c.EncryptionRoot); err != nil {
		return
	}
	if ir, err = parseRoot("ir", c.IdentityRoot); err != nil {
		return
	}
	return er, ir, true, nil
}

// Options returns the manager options for the settings. The transport,
// handler, crypto service and store are added by the caller.
func (c *Config) Options() ([]smp.Option, error) {
	p, err := c.LocalParams()
	if err != nil {
		return nil, err
	}
	opts := []smp.Option{
		smp.OptLocalParams(p),
		smp.OptMinKeySize(c.MinKeySize),
		smp.OptResponseTimeout(c.ResponseTimeout),
		smp.OptReleaseDelay(c.ReleaseDelay),
	}

	er, ir, ok, err := c.roots()
	if err != nil {
		return nil, err
	}
	if ok {
		opts = append(opts, smp.OptDeviceKeys(er, ir))
	}
	return opts, nil
}

// Crypto returns the crypto service and a function releasing it.
func (c *Config) Crypto() (smp.Crypto, func(), error) {
	if c.CryptoWorkers <= 0 {
		return smp.LocalCrypto{}, func() {}, nil
	}
	pc, err := smp.NewPoolCrypto(c.CryptoWorkers)
	if err != nil {
		return nil, nil, err
	}
	return pc, pc.Release, nil
}

// Records is a SecurityDB that can list what it holds.
type Records interface {
	smp.SecurityDB
	Records() ([]*smp.Record, error)
}

type memoryRecords struct {
	*smp.MemoryDB
}

func (m memoryRecords) Records() ([]*smp.Record, error) {
	return m.MemoryDB.Records(), nil
}

// SecurityDB opens the configured store. The returned function closes it.
func (c *Config) SecurityDB() (Records, func() error, error) {
	switch c.Store {
	case StoreFile:
		return bond.NewFileStore(c.BondFile), func() error { return nil }, nil
	case StoreRedis:
		rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		return bond.NewRedisStore(rdb, c.RedisPrefix), rdb.Close, nil
	case StoreMemory, "":
		return memoryRecords{smp.NewMemoryDB()}, func() error { return nil }, nil
	}
	return nil, nil, errors.Errorf("unknown store %q", c.Store)
}

// ApplyLogLevel sets the level of the default logger.
func (c *Config) ApplyLogLevel() error {
	return ble.SetLogLevel(c.LogLevel)
}
