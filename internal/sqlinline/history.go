package sqlinline

const QInsertHistoryEntry = `--sql 3f9c2a47-6b1e-4d8a-9c55-2e7d01a4b6f8
insert into batch_history (id, params, items, created_at)
values ($1::uuid, $2::jsonb, $3::jsonb, $4::timestamptz);
`

const QListHistoryEntries = `--sql b74e8f02-91ac-4c3d-8867-5d40cc19ae21
select id, params, items, created_at
from batch_history
order by created_at desc;
`

const QDeleteHistoryEntry = `--sql 5c6aa1d9-3b2f-4e70-9a14-8f3d62c90b45
delete from batch_history
where id = $1::uuid;
`

const QClearHistory = `--sql e2183c76-4fd0-49b8-a3c1-07b9ade45612
delete from batch_history;
`

const QPurgeHistoryBefore = `--sql 94d7b3e8-62a5-4f19-bd30-c158ea07f426
delete from batch_history
where created_at < $1::timestamptz;
`
