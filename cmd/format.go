// cmd/format.go

package main

import (
	"bytes"
	crand "crypto/rand"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/neveralso/Diving-Into-HFS/pkg/check"
	"github.com/neveralso/Diving-Into-HFS/pkg/compress"
	"github.com/neveralso/Diving-Into-HFS/pkg/store"
)

func fixChunkSize(s int) int {
	const nim, xam = 64, 16 << 20
	var bits uint
	for s > 1 {
		bits++
		s >>= 1
	}
	s = s << bits
	if s < nim {
		s = nim
	} else if s > xam {
		s = xam
	}
	return s
}

// baseStorage connects to the raw store named by format, without the
// prefix/compress/encrypt chain. The volume description itself is kept
// here so that status can read it knowing only storage and bucket.
func baseStorage(format *store.Format) (store.ObjectStore, error) {
	if format.Shards > 1 {
		return store.NewSharded(strings.ToLower(format.Storage), format.Bucket, format.AccessKey, format.SecretKey, format.Shards)
	}
	return store.CreateStorage(strings.ToLower(format.Storage), format.Bucket, format.AccessKey, format.SecretKey)
}

func createStorage(format *store.Format) (store.ObjectStore, error) {
	blob, err := baseStorage(format)
	if err != nil {
		return nil, err
	}
	blob = store.WithPrefix(blob, format.Name+"/")

	if format.EncryptKey != "" {
		passphrase := os.Getenv("HFS_RSA_PASSPHRASE")
		privKey, err := store.ParseRsaPrivateKeyFromPem(format.EncryptKey, passphrase)
		if err != nil {
			return nil, fmt.Errorf("load private key: %s", err)
		}
		blob = store.NewEncrypted(blob, store.NewAESEncryptor(store.NewRSAEncryptor(privKey)))
	}
	if format.Compression != "" && format.Compression != "none" {
		compressor := compress.NewCompressor(format.Compression)
		if compressor == nil {
			return nil, fmt.Errorf("unsupported compress algorithm: %s", format.Compression)
		}
		blob = store.NewCompressed(blob, compressor)
	}
	return blob, nil
}

var letters = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

func randSeq(n int) string {
	b := make([]rune, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}

func doTesting(blob store.ObjectStore, key string, data []byte) error {
	if err := blob.Put(key, bytes.NewReader(data)); err != nil {
		if strings.Contains(err.Error(), "Access Denied") {
			return fmt.Errorf("Failed to put: %s", err)
		}
		if err2 := blob.Create(); err2 != nil {
			return fmt.Errorf("Failed to create %s: %s,  previous error: %s\nplease create bucket %s manually, then format again",
				blob, err2, err, blob)
		}
		if err := blob.Put(key, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("Failed to put: %s", err)
		}
	}
	p, err := blob.Get(key, 0, -1)
	if err != nil {
		return fmt.Errorf("Failed to get: %s", err)
	}
	data2, err := io.ReadAll(p)
	_ = p.Close()
	if err != nil {
		return err
	}
	if !bytes.Equal(data, data2) {
		return fmt.Errorf("Read wrong data")
	}
	err = blob.Delete(key)
	if err != nil {
		// it's OK to don't have deletion permission
		fmt.Printf("Failed to delete: %s", err)
	}
	return nil
}

func test(blob store.ObjectStore) error {
	key := "testing/" + randSeq(10)
	data := make([]byte, 100)
	crand.Read(data)
	nRetry := 3
	var err error
	for i := 0; i < nRetry; i++ {
		err = doTesting(blob, key, data)
		if err == nil {
			return nil
		}
		time.Sleep(time.Second * time.Duration(i*3+1))
	}
	return err
}

func format(c *cli.Context) error {
	setLoggerLevel(c)
	if c.Args().Len() < 1 {
		logger.Fatalf("Please give it a name")
	}
	name := c.Args().Get(0)
	validName := regexp.MustCompile(`^[a-z0-9][a-z0-9\-]{1,61}[a-z0-9]$`)
	if !validName.MatchString(name) {
		logger.Fatalf("invalid name: %s, only alphabet, number and - are allowed, and the length should be 3 to 63 characters.", name)
	}

	if _, err := check.Lookup(c.String("checksum")); err != nil {
		logger.Fatalf("%s", err)
	}
	if compress.NewCompressor(c.String("compress")) == nil {
		logger.Fatalf("Unsupported compress algorithm: %s", c.String("compress"))
	}

	format := store.Format{
		Name:        name,
		UUID:        uuid.New().String(),
		Storage:     c.String("storage"),
		Bucket:      c.String("bucket"),
		AccessKey:   c.String("access-key"),
		SecretKey:   c.String("secret-key"),
		ChunkSize:   fixChunkSize(c.Int("chunk-size")),
		Checksum:    c.String("checksum"),
		Verify:      !c.Bool("no-verify"),
		Compression: c.String("compress"),
		Shards:      c.Int("shards"),
	}
	if format.AccessKey == "" && os.Getenv("ACCESS_KEY") != "" {
		format.AccessKey = os.Getenv("ACCESS_KEY")
		os.Unsetenv("ACCESS_KEY")
	}
	if format.SecretKey == "" && os.Getenv("SECRET_KEY") != "" {
		format.SecretKey = os.Getenv("SECRET_KEY")
		os.Unsetenv("SECRET_KEY")
	}

	if format.Storage == "file" && !strings.HasSuffix(format.Bucket, "/") {
		format.Bucket += "/"
	}

	keyPath := c.String("encrypt-rsa-key")
	if keyPath != "" {
		pem, err := os.ReadFile(keyPath)
		if err != nil {
			logger.Fatalf("load RSA key from %s: %s", keyPath, err)
		}
		format.EncryptKey = string(pem)
	}

	base, err := baseStorage(&format)
	if err != nil {
		logger.Fatalf("object storage: %s", err)
	}
	if c.Bool("no-update") {
		if _, err := store.LoadFormat(base); err == nil {
			return nil
		}
	}

	blob, err := createStorage(&format)
	if err != nil {
		logger.Fatalf("object storage: %s", err)
	}
	logger.Infof("Data uses %s", blob)
	if err := test(blob); err != nil {
		logger.Fatalf("Storage %s is not configured correctly: %s", blob, err)
	}

	if err = format.Save(base, c.Bool("force")); err != nil {
		logger.Fatalf("format: %s", err)
	}
	format.RemoveSecret()
	logger.Infof("Volume is formatted as %+v", format)
	return nil
}

func defaultBucket() string {
	switch runtime.GOOS {
	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			logger.Fatalf("%v", err)
		}
		return path.Join(homeDir, ".hfs", "local")
	case "windows":
		return path.Join("C:/hfs/local")
	}
	return "/var/hfs"
}

func formatFlags() *cli.Command {
	return &cli.Command{
		Name:      "format",
		Usage:     "format a volume",
		ArgsUsage: "NAME",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "chunk-size",
				Value: 512,
				Usage: "bytes covered by one checksum",
			},
			&cli.StringFlag{
				Name:  "checksum",
				Value: "crc32",
				Usage: "checksum algorithm (crc32, crc32c)",
			},
			&cli.BoolFlag{
				Name:  "no-verify",
				Usage: "don't verify checksums when reading back",
			},
			&cli.StringFlag{
				Name:  "compress",
				Value: "none",
				Usage: "compression algorithm (lz4, zstd, none)",
			},
			&cli.IntFlag{
				Name:  "shards",
				Value: 0,
				Usage: "store the chunks into N buckets by hash of key",
			},
			&cli.StringFlag{
				Name:  "storage",
				Value: "file",
				Usage: "object storage type (e.g. file, redis, bolt, sftp, mem)",
			},
			&cli.StringFlag{
				Name:  "bucket",
				Value: defaultBucket(),
				Usage: "a bucket URL to store data",
			},
			&cli.StringFlag{
				Name:  "access-key",
				Usage: "access key for object storage (env ACCESS_KEY)",
			},
			&cli.StringFlag{
				Name:  "secret-key",
				Usage: "secret key for object storage (env SECRET_KEY)",
			},
			&cli.StringFlag{
				Name:  "encrypt-rsa-key",
				Usage: "a path to RSA private key (PEM)",
			},

			&cli.BoolFlag{
				Name:  "force",
				Usage: "overwrite existing format",
			},
			&cli.BoolFlag{
				Name:  "no-update",
				Usage: "don't update existing volume",
			},
		},
		Action: format,
	}
}
