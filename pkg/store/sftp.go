// pkg/store/sftp.go

package store

import (
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

type sftpStore struct {
	addr   string
	user   string
	root   string
	client *sftp.Client
}

// NewSftp returns an ObjectStore over SFTP. The endpoint is
// "host[:port]/remote/path"; user and pass authenticate the SSH
// session.
func NewSftp(endpoint, user, pass string) (ObjectStore, error) {
	addr, root := endpoint, "/"
	if sep := strings.Index(endpoint, "/"); sep >= 0 {
		addr, root = endpoint[:sep], endpoint[sep:]
	}
	if !strings.Contains(addr, ":") {
		addr += ":22"
	}
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	config := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.Password(pass)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         time.Second * 3,
	}
	conn, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %s", addr, err)
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sftp session to %s: %s", addr, err)
	}
	return &sftpStore{addr: addr, user: user, root: root, client: client}, nil
}

func newSftp(endpoint, accessKey, secretKey string) (ObjectStore, error) {
	return NewSftp(endpoint, accessKey, secretKey)
}

func init() {
	Register("sftp", newSftp)
}

func (s *sftpStore) String() string {
	return fmt.Sprintf("sftp://%s@%s%s", s.user, s.addr, s.root)
}

func (s *sftpStore) path(key string) string {
	return s.root + key
}

func (s *sftpStore) Create() error {
	return s.client.MkdirAll(s.root)
}

func (s *sftpStore) Get(key string, off, limit int64) (io.ReadCloser, error) {
	f, err := s.client.Open(s.path(key))
	if err != nil {
		return nil, err
	}
	if off > 0 {
		if _, err = f.Seek(off, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	if limit >= 0 {
		return &sectionFile{io.LimitReader(f, limit), f}, nil
	}
	return f, nil
}

func (s *sftpStore) Put(key string, in io.Reader) error {
	p := s.path(key)
	if err := s.client.MkdirAll(path.Dir(p)); err != nil {
		return err
	}
	tmp := fmt.Sprintf("%s.tmp.%s", p, uuid.New().String()[:8])
	f, err := s.client.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_EXCL)
	if err != nil {
		return err
	}
	if _, err = io.Copy(f, in); err != nil {
		_ = f.Close()
		_ = s.client.Remove(tmp)
		return err
	}
	if err = f.Close(); err != nil {
		_ = s.client.Remove(tmp)
		return err
	}
	if err = s.client.PosixRename(tmp, p); err != nil {
		_ = s.client.Remove(tmp)
		return err
	}
	return nil
}

func (s *sftpStore) Delete(key string) error {
	err := s.client.Remove(s.path(key))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

var _ ObjectStore = (*sftpStore)(nil)
