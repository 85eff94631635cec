package vcf

import (
	"context"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
)

// Open reads the VCF at path, transparently decompressing gzipped input.
// Gzip is detected by content, not filename, since .vcf files are routinely
// bgzipped without a .gz suffix.
func Open(ctx context.Context, path string) (f *File, err error) {
	var in file.File
	if in, err = file.Open(ctx, path); err != nil {
		return
	}
	defer file.CloseAndReport(ctx, in, &err)
	reader, _ := compress.NewReader(in.Reader(ctx))
	defer func() {
		if e := reader.Close(); e != nil && err == nil {
			err = e
		}
	}()
	return Read(reader)
}

// Create writes f to path in VCF text form, gzip-compressing when the path
// carries a recognized compression suffix.
func Create(ctx context.Context, path string, f *File) (err error) {
	var out file.File
	if out, err = file.Create(ctx, path); err != nil {
		return
	}
	defer file.CloseAndReport(ctx, out, &err)
	if zw, ok := compress.NewWriterPath(out.Writer(ctx), path); ok {
		defer func() {
			if e := zw.Close(); e != nil && err == nil {
				err = e
			}
		}()
		return f.Write(zw)
	}
	return f.Write(out.Writer(ctx))
}
