package configfile

// fileConfig is a direct, typed mirror of the logical YAML schema from
// spec.md §6: listen/client_body_size_limit/error_path/route/vhost.
// It is unmarshaled, then translated into config.ServerConfig — it
// never flows into the core directly.
type fileConfig struct {
	Listen               []string         `yaml:"listen"`
	ClientBodySizeLimit  int64            `yaml:"client_body_size_limit"`
	IdleTimeoutSeconds   int              `yaml:"idle_timeout_seconds"`
	CGITimeoutSeconds    int              `yaml:"cgi_timeout_seconds"`
	ServerSoftware       string           `yaml:"server_software"`
	VHosts               []fileVHost      `yaml:"vhost"`
}

type fileVHost struct {
	Name          string         `yaml:"name"`
	Names         []string       `yaml:"names"`
	Listen        []string       `yaml:"listen"`
	Default       bool           `yaml:"default"`
	ErrorPages    map[int]string `yaml:"error_pages"`
	BodySizeLimit int64          `yaml:"client_body_size_limit"`
	Routes        []fileRoute    `yaml:"route"`
}

type fileRoute struct {
	Prefix      string   `yaml:"prefix"`
	Methods     []string `yaml:"methods"`
	Root        string   `yaml:"root"`
	DefaultFile string   `yaml:"default_file"`
	Autoindex   bool     `yaml:"autoindex"`
	Redirect    string   `yaml:"redirect"`
	CGI         string   `yaml:"cgi"`
}
