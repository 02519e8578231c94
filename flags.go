package fscore

import "os"

// ModePerm is the permission bits reported for every inode a driver in this
// module exposes, file or directory alike: FAT has no per-file owner/group/
// other distinction, so stat always reports 0777 and lets the directory bit
// in os.FileMode carry the only real distinction.
const ModePerm os.FileMode = 0o777
